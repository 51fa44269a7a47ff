package types

// Config represents the chatkit configuration.
type Config struct {
	// LogLevel is the minimum log level (DEBUG|INFO|WARN|ERROR).
	LogLevel string `json:"logLevel,omitempty"`
	// PrettyLogs enables human-readable console output.
	PrettyLogs bool `json:"prettyLogs,omitempty"`

	// StoragePath is the root directory for persisted sessions.
	StoragePath string `json:"storagePath,omitempty"`
	// MaxPersistedSessions caps retained sessions per storage scope.
	// Oldest-by-creation-date sessions are evicted first.
	MaxPersistedSessions int `json:"maxPersistedSessions,omitempty"`
	// UseFileStorage selects per-session-file persistence over the
	// single-blob mode.
	UseFileStorage bool `json:"useFileStorage,omitempty"`

	// DetectionEnabled turns on participant/command detection for
	// requests with no explicit agent or command.
	DetectionEnabled bool `json:"detectionEnabled,omitempty"`

	// TransferExpirationMS bounds how long a cross-scope transfer
	// record may wait to be claimed.
	TransferExpirationMS int64 `json:"transferExpirationMs,omitempty"`

	// AgentManifests lists YAML files describing declarative agents.
	AgentManifests []string `json:"agentManifests,omitempty"`

	// Server holds HTTP server settings.
	Server ServerConfig `json:"server,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port       int  `json:"port,omitempty"`
	EnableCORS bool `json:"enableCors,omitempty"`
}

// DefaultMaxPersistedSessions is the retention cap used when the
// config does not set one.
const DefaultMaxPersistedSessions = 25

// DefaultTransferExpirationMS is the transfer claim window.
const DefaultTransferExpirationMS = 60 * 1000

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.MaxPersistedSessions <= 0 {
		c.MaxPersistedSessions = DefaultMaxPersistedSessions
	}
	if c.TransferExpirationMS <= 0 {
		c.TransferExpirationMS = DefaultTransferExpirationMS
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
}
