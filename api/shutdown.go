// File: api/shutdown.go
// Package api defines the graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that own descriptors or
// filesystem entries and must release them exactly once.
type GracefulShutdown interface {
	// Shutdown releases every resource. Repeated calls return the result
	// of the first one.
	Shutdown() error
}
