package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.config/chatkit/)
//  2. Project config (.chatkit/)
//  3. CHATKIT_CONFIG file
//  4. CHATKIT_CONFIG_CONTENT inline JSON
//  5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "chatkit.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "chatkit.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".chatkit")
		loadOnce(filepath.Join(directory, "chatkit.json"), directory)
		loadOnce(filepath.Join(directory, "chatkit.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "chatkit.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "chatkit.jsonc"), projectConfigDir)
	}

	// 3. CHATKIT_CONFIG file override
	if configPath := os.Getenv("CHATKIT_CONFIG"); configPath != "" {
		configDir := filepath.Dir(configPath)
		loadOnce(configPath, configDir)
	}

	// 4. CHATKIT_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("CHATKIT_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	config.ApplyDefaults()
	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.PrettyLogs {
		target.PrettyLogs = true
	}
	if source.StoragePath != "" {
		target.StoragePath = source.StoragePath
	}
	if source.MaxPersistedSessions > 0 {
		target.MaxPersistedSessions = source.MaxPersistedSessions
	}
	if source.UseFileStorage {
		target.UseFileStorage = true
	}
	if source.DetectionEnabled {
		target.DetectionEnabled = true
	}
	if source.TransferExpirationMS > 0 {
		target.TransferExpirationMS = source.TransferExpirationMS
	}
	if len(source.AgentManifests) > 0 {
		target.AgentManifests = append(target.AgentManifests, source.AgentManifests...)
	}
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.EnableCORS {
		target.Server.EnableCORS = true
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if level := os.Getenv("CHATKIT_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if path := os.Getenv("CHATKIT_STORAGE_PATH"); path != "" {
		config.StoragePath = path
	}
	if v := os.Getenv("CHATKIT_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxPersistedSessions = n
		}
	}
	if v := os.Getenv("CHATKIT_FILE_STORAGE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.UseFileStorage = b
		}
	}
	if v := os.Getenv("CHATKIT_DETECTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.DetectionEnabled = b
		}
	}
	if v := os.Getenv("CHATKIT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Server.Port = n
		}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
