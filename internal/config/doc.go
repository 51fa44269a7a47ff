// Package config provides configuration loading, merging, and path management.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/chatkit/)
//  2. Project config (chatkit.json/chatkit.jsonc and .chatkit/chatkit.json)
//  3. CHATKIT_CONFIG file
//  4. CHATKIT_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// More specific configurations override more general ones; environment
// variables have the highest precedence.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are supported:
//   - chatkit.json - Standard JSON configuration
//   - chatkit.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support absolute paths, paths
// relative to the config file directory, and ~/ expansion.
//
// # Path Management
//
// The Paths type follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/chatkit (XDG_DATA_HOME)
//   - Config: ~/.config/chatkit (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/chatkit (XDG_CACHE_HOME)
//   - State: ~/.local/state/chatkit (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
//   - CHATKIT_LOG_LEVEL - Override the log level
//   - CHATKIT_STORAGE_PATH - Override the session storage directory
//   - CHATKIT_MAX_SESSIONS - Override the persisted-session cap
//   - CHATKIT_FILE_STORAGE - Select per-session-file persistence
//   - CHATKIT_DETECTION - Toggle participant detection
//   - CHATKIT_PORT - Override the HTTP server port
//   - CHATKIT_CONFIG - Path to a specific config file
//   - CHATKIT_CONFIG_CONTENT - Inline JSON configuration
package config
