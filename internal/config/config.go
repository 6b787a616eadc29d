package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/sockmux/internal/logging"
)

// DefaultSocketPath is the well-known address of the service.
const DefaultSocketPath = "/tmp/sockmux.sock"

// MaxSocketPathLen is the longest path that fits sun_path on Linux,
// leaving room for the terminating NUL.
const MaxSocketPathLen = 107

// Config holds runtime configuration for the multiplexer.
type Config struct {
	SocketPath string

	// MaxClients is the fixed slot table capacity.
	MaxClients int
	// BufferSize is the per-slot read buffer; one read returns at most
	// BufferSize-1 bytes.
	BufferSize int
	// Backlog is the listen(2) backlog; zero means MaxClients.
	Backlog int

	// PollInterval is the sleep between loop passes.
	PollInterval time.Duration
	// ServiceInterval bounds how long the loop goes without a full
	// accept-and-read pass when no readiness hint arrives.
	ServiceInterval time.Duration

	Notify    bool
	WatchPath bool

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SocketPath:      DefaultSocketPath,
		MaxClients:      10,
		BufferSize:      1024,
		PollInterval:    10 * time.Millisecond,
		ServiceInterval: 10 * time.Millisecond,
		Notify:          true,
		WatchPath:       true,
		LogLevel:        "info",
		LogFormat:       logging.FormatConsole,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path is required")
	}
	if len(c.SocketPath) > MaxSocketPathLen {
		return fmt.Errorf("socket path %q is %d bytes, limit is %d", c.SocketPath, len(c.SocketPath), MaxSocketPathLen)
	}
	if c.MaxClients < 1 {
		return fmt.Errorf("max clients must be at least 1")
	}
	if c.BufferSize < 2 {
		return fmt.Errorf("buffer size must be at least 2")
	}
	if c.Backlog < 0 {
		return fmt.Errorf("backlog must not be negative")
	}
	if c.Backlog == 0 {
		c.Backlog = c.MaxClients
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.ServiceInterval <= 0 {
		return fmt.Errorf("service interval must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log format must be %q or %q", logging.FormatConsole, logging.FormatJSON)
	}
	return nil
}

// configSetter applies values while respecting flag precedence: a value
// is only applied if the corresponding flag has not been set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses an environment value; non-positive values are ignored.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
