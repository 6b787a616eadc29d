// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"time"

	"github.com/momentics/sockmux/api"
)

// Config holds all server-side configuration parameters.
type Config struct {
	SocketPath      string        // filesystem address of the listening socket
	MaxClients      int           // fixed slot table capacity
	BufferSize      int           // per-slot read buffer; reads return at most BufferSize-1 bytes
	Backlog         int           // listen(2) backlog, zero means MaxClients
	PollInterval    time.Duration // sleep between loop passes
	ServiceInterval time.Duration // longest gap between full accept-and-read passes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SocketPath:      "/tmp/sockmux.sock",
		MaxClients:      10,
		BufferSize:      1024,
		PollInterval:    10 * time.Millisecond,
		ServiceInterval: 10 * time.Millisecond,
	}
}

func (c *Config) validate() error {
	switch {
	case c.SocketPath == "":
		return fmt.Errorf("socket path: %w", api.ErrInvalidArgument)
	case c.MaxClients < 1:
		return fmt.Errorf("max clients %d: %w", c.MaxClients, api.ErrInvalidArgument)
	case c.BufferSize < 2:
		return fmt.Errorf("buffer size %d: %w", c.BufferSize, api.ErrInvalidArgument)
	case c.PollInterval <= 0 || c.ServiceInterval <= 0:
		return fmt.Errorf("intervals must be positive: %w", api.ErrInvalidArgument)
	case c.Backlog < 0:
		return fmt.Errorf("backlog %d: %w", c.Backlog, api.ErrInvalidArgument)
	}
	if c.Backlog == 0 {
		c.Backlog = c.MaxClients
	}
	return nil
}
