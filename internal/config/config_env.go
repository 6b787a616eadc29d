package config

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "SOCKMUX_"

// ApplyEnvConfig applies SOCKMUX_* variables to cfg, skipping explicitly
// set flags. Environment overrides the config file.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("socket", os.Getenv(EnvPrefix+"SOCKET"), &cfg.SocketPath)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv(EnvPrefix+"LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setIntFromString("max-clients", os.Getenv(EnvPrefix+"MAX_CLIENTS"), &cfg.MaxClients); err != nil {
		return err
	}
	if err := s.setIntFromString("buffer-size", os.Getenv(EnvPrefix+"BUFFER_SIZE"), &cfg.BufferSize); err != nil {
		return err
	}
	if err := s.setIntFromString("backlog", os.Getenv(EnvPrefix+"BACKLOG"), &cfg.Backlog); err != nil {
		return err
	}
	if err := s.setDuration("poll-interval", os.Getenv(EnvPrefix+"POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("service-interval", os.Getenv(EnvPrefix+"SERVICE_INTERVAL"), &cfg.ServiceInterval); err != nil {
		return err
	}

	s.setBoolFromString("notify", os.Getenv(EnvPrefix+"NOTIFY"), &cfg.Notify)
	s.setBoolFromString("watch-path", os.Getenv(EnvPrefix+"WATCH_PATH"), &cfg.WatchPath)
	return nil
}
