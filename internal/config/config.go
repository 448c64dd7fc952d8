// Copyright 2024 KernelFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kernelfs/internal/artifacts"
)

// EnvConfigDir overrides the config directory
const EnvConfigDir = "KERNELFS_CONFIG_DIR"

// getConfigDir returns the config directory path.
// Uses KERNELFS_CONFIG_DIR env var if set, otherwise defaults to ~/.kernelfs.
// This is computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kernelfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// StateDir returns the directory holding the state store
func StateDir() string {
	return filepath.Join(getConfigDir(), "state")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// InitConfigDir initializes the config directory with default files
func InitConfigDir() error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	settingsPath := SettingsPath()
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, artifacts.GlobalSettings, 0600); err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}
	}

	if err := os.MkdirAll(StateDir(), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

// Settings holds user-tunable behaviour
type Settings struct {
	LogLevel         string   `yaml:"log_level"`           // trace, debug, info, warn, off (default: off)
	Owner            string   `yaml:"owner"`               // identity stamped on new nodes (default: admin)
	StateBackend     string   `yaml:"state_backend"`       // sqlite, file, memory (default: sqlite)
	StateKey         string   `yaml:"state_key"`           // store key for the sandbox (default: kernelfs_state)
	LogCapacity      int      `yaml:"log_capacity"`        // operation log size (default: 1000)
	MaxFileSize      int64    `yaml:"max_file_size"`       // bytes (default: 100 MiB)
	SeedDirs         []string `yaml:"seed_dirs"`           // created on mount
	IgnoreFile       string   `yaml:"ignore_file"`         // listing filter at uplink root
	HandleCacheTTLMs int      `yaml:"handle_cache_ttl_ms"` // 0 = no expiry
	BusyTimeout      int      `yaml:"busy_timeout"`        // SQLite busy_timeout (ms), 0 = use default
}

// HandleCacheTTL converts HandleCacheTTLMs
func (s *Settings) HandleCacheTTL() time.Duration {
	return time.Duration(s.HandleCacheTTLMs) * time.Millisecond
}

// LoggingEnabled returns whether logging is enabled (any level other than "off", "none" or empty).
func (s *Settings) LoggingEnabled() bool {
	level := strings.ToLower(s.LogLevel)
	return level != "" && level != "off" && level != "none"
}

// Validate rejects settings the rest of the program cannot use
func (s *Settings) Validate() error {
	switch s.StateBackend {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("state_backend: unknown backend %q", s.StateBackend)
	}
	if s.LogCapacity <= 0 {
		return fmt.Errorf("log_capacity: must be positive, got %d", s.LogCapacity)
	}
	if s.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size: must be positive, got %d", s.MaxFileSize)
	}
	for _, d := range s.SeedDirs {
		if d == "" || strings.ContainsAny(d, "/\x00") || d == "." || d == ".." {
			return fmt.Errorf("seed_dirs: invalid name %q", d)
		}
	}
	return nil
}

// Defaults parses default settings from the embedded artifact.
func Defaults() Settings {
	var settings Settings
	if err := yaml.Unmarshal(artifacts.GlobalSettings, &settings); err != nil {
		panic("failed to parse embedded settings: " + err.Error())
	}
	return settings
}

// Load reads settings from SettingsPath. Fields missing from the file keep
// their embedded defaults; a missing file yields the defaults.
func Load() (*Settings, error) {
	return LoadFromPath(SettingsPath())
}

// LoadFromPath reads settings from path layered over the defaults
func LoadFromPath(path string) (*Settings, error) {
	settings := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &settings, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &settings, nil
}

// Save writes settings to SettingsPath
func Save(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	header := []byte("# KernelFS settings\n# See: kernelfs --help\n\n")
	return os.WriteFile(SettingsPath(), append(header, data...), 0600)
}
