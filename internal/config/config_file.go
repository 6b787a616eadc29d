package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with string durations for TOML.
type FileConfig struct {
	SocketPath      string `toml:"socket_path"`
	MaxClients      int    `toml:"max_clients"`
	BufferSize      int    `toml:"buffer_size"`
	Backlog         int    `toml:"backlog"`
	PollInterval    string `toml:"poll_interval"`
	ServiceInterval string `toml:"service_interval"`
	Notify          *bool  `toml:"notify"`
	WatchPath       *bool  `toml:"watch_path"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.sockmux/config.toml, or "" without a home dir.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sockmux", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies file values to cfg, skipping explicitly set flags.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("socket", fc.SocketPath, &cfg.SocketPath)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setInt("max-clients", fc.MaxClients, &cfg.MaxClients)
	s.setInt("buffer-size", fc.BufferSize, &cfg.BufferSize)
	s.setInt("backlog", fc.Backlog, &cfg.Backlog)

	if err := s.setDuration("poll-interval", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("service-interval", fc.ServiceInterval, &cfg.ServiceInterval); err != nil {
		return err
	}

	s.setBool("notify", fc.Notify, &cfg.Notify)
	s.setBool("watch-path", fc.WatchPath, &cfg.WatchPath)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
