package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_HOST", "SERVER_PORT", "ADMIN_TOKEN", "ADMIN_ONLY_RESIZE",
	"DEFAULT_CANVAS_WIDTH", "DEFAULT_CANVAS_HEIGHT", "DEFAULT_SNAPSHOT_INTERVAL",
	"MAX_CANVAS_DIMENSION",
	"PERSISTENCE_PATH", "AUTOSAVE_INTERVAL_SECONDS", "OUTBOUND_QUEUE_SIZE",
	"DATABASE_URL", "JOURNAL_WORKERS", "JOURNAL_QUEUE_SIZE",
	"JAEGER_ENDPOINT", "LOG_DEVELOPMENT",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	// Keep a stray ./.env out of the picture.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, 128, cfg.CanvasWidth)
	assert.Equal(t, 128, cfg.CanvasHeight)
	assert.Equal(t, 100, cfg.SnapshotInterval)
	assert.Equal(t, 1024, cfg.MaxCanvasDimension)
	assert.Equal(t, "history.bin", cfg.PersistencePath)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 256, cfg.OutboundQueueSize)
	assert.False(t, cfg.AdminOnlyResize)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_RequiresAdminToken(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.ErrorContains(t, err, "ADMIN_TOKEN")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"DEFAULT_SNAPSHOT_INTERVAL": "0",
		"DEFAULT_CANVAS_WIDTH":      "0",
		"DEFAULT_CANVAS_HEIGHT":     "abc",
		"AUTOSAVE_INTERVAL_SECONDS": "-5",
		"OUTBOUND_QUEUE_SIZE":       "0",
		"MAX_CANVAS_DIMENSION":      "64",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ADMIN_TOKEN", "secret")
			t.Setenv(key, value)

			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "test.env")
	content := "ADMIN_TOKEN=from-file\nDEFAULT_CANVAS_WIDTH=32\nADMIN_ONLY_RESIZE=true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// godotenv does not override variables that are already set, so unset
	// the blanks clearEnv installed for the keys in the file.
	for _, k := range []string{"ADMIN_TOKEN", "DEFAULT_CANVAS_WIDTH", "ADMIN_ONLY_RESIZE"} {
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AdminToken)
	assert.Equal(t, 32, cfg.CanvasWidth)
	assert.True(t, cfg.AdminOnlyResize)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
