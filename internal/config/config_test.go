package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDir(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")
		dir := ConfigDir()
		assert.NotEmpty(t, dir)
		assert.True(t, strings.HasSuffix(dir, ".kernelfs"), "should end with .kernelfs")
	})

	t.Run("override with KERNELFS_CONFIG_DIR", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/tmp/test-kernelfs-config")
		assert.Equal(t, "/tmp/test-kernelfs-config", ConfigDir())
		assert.Equal(t, "/tmp/test-kernelfs-config/settings.yaml", SettingsPath())
		assert.Equal(t, "/tmp/test-kernelfs-config/state", StateDir())
	})
}

func TestDefaults(t *testing.T) {
	s := Defaults()
	assert.Equal(t, "off", s.LogLevel)
	assert.False(t, s.LoggingEnabled())
	assert.Equal(t, "admin", s.Owner)
	assert.Equal(t, "sqlite", s.StateBackend)
	assert.Equal(t, "kernelfs_state", s.StateKey)
	assert.Equal(t, 1000, s.LogCapacity)
	assert.Equal(t, int64(100<<20), s.MaxFileSize)
	assert.Equal(t, []string{"system", "users", "applications", "temp"}, s.SeedDirs)
	assert.Equal(t, ".kfsignore", s.IgnoreFile)
	assert.Equal(t, 5*time.Second, s.HandleCacheTTL())
	assert.NoError(t, s.Validate())
}

func TestInitConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvConfigDir, filepath.Join(tmpDir, "cfg"))

	require.NoError(t, InitConfigDir())
	_, err := os.Stat(SettingsPath())
	require.NoError(t, err)
	info, err := os.Stat(StateDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// existing settings are left alone
	require.NoError(t, os.WriteFile(SettingsPath(), []byte("owner: guest\n"), 0600))
	require.NoError(t, InitConfigDir())
	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "guest", s.Owner)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *s)

	require.NoError(t, EnsureConfigDir())
	require.NoError(t, os.WriteFile(SettingsPath(), []byte("log_level: debug\nstate_backend: file\nlog_capacity: 50\n"), 0600))
	s, err = Load()
	require.NoError(t, err)
	assert.True(t, s.LoggingEnabled())
	assert.Equal(t, "file", s.StateBackend)
	assert.Equal(t, 50, s.LogCapacity)
	assert.Equal(t, "admin", s.Owner)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "state_backend: redis\n"},
		{"zero capacity", "log_capacity: 0\n"},
		{"bad seed dir", "seed_dirs: [\"a/b\"]\n"},
		{"negative size", "max_file_size: -1\n"},
		{"not yaml", "owner: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0600))
			_, err := LoadFromPath(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	s := Defaults()
	s.Owner = "guest"
	s.SeedDirs = []string{"data"}
	require.NoError(t, Save(&s))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, s, *loaded)

	bad := Defaults()
	bad.StateBackend = "nope"
	assert.Error(t, Save(&bad))
}
