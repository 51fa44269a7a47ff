package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("CHATKIT_CONFIG", "")
	t.Setenv("CHATKIT_CONFIG_CONTENT", "")
	return tmpDir
}

func TestLoadProjectConfig(t *testing.T) {
	tmpDir := isolateEnv(t)

	content := `{
		"logLevel": "DEBUG",
		"maxPersistedSessions": 50,
		"detectionEnabled": true,
		"server": { "port": 9090 }
	}`
	configPath := filepath.Join(tmpDir, ".chatkit", "chatkit.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 50, cfg.MaxPersistedSessions)
	assert.True(t, cfg.DetectionEnabled)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadJSONCConfig(t *testing.T) {
	tmpDir := isolateEnv(t)

	content := `{
		// retention cap for this workspace
		"maxPersistedSessions": 10,
	}`
	configPath := filepath.Join(tmpDir, "chatkit.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxPersistedSessions)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := isolateEnv(t)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 25, cfg.MaxPersistedSessions)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.UseFileStorage)
}

func TestEnvInterpolation(t *testing.T) {
	tmpDir := isolateEnv(t)
	t.Setenv("CHATKIT_TEST_STORAGE", "/tmp/chatkit-storage")

	content := `{"storagePath": "{env:CHATKIT_TEST_STORAGE}"}`
	configPath := filepath.Join(tmpDir, "chatkit.json")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chatkit-storage", cfg.StoragePath)
}

func TestEnvOverridesWinOverFiles(t *testing.T) {
	tmpDir := isolateEnv(t)

	content := `{"logLevel": "WARN", "server": {"port": 7000}}`
	configPath := filepath.Join(tmpDir, "chatkit.json")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	t.Setenv("CHATKIT_LOG_LEVEL", "ERROR")
	t.Setenv("CHATKIT_PORT", "7001")
	t.Setenv("CHATKIT_FILE_STORAGE", "true")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.LogLevel)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.True(t, cfg.UseFileStorage)
}

func TestInlineConfigContent(t *testing.T) {
	tmpDir := isolateEnv(t)
	t.Setenv("CHATKIT_CONFIG_CONTENT", `{"transferExpirationMs": 5000}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, cfg.TransferExpirationMS)
}
