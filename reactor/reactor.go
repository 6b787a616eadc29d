// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness notifier interface and readiness flag.

package reactor

import "sync/atomic"

// ReadyFunc is invoked from the notifier goroutine when a watched
// descriptor may have become readable. It must not block, allocate or
// perform I/O; setting atomics is the intended use.
type ReadyFunc func()

// Notifier delivers asynchronous readiness hints for watched descriptors.
// A hint says only that something may have changed; consumers must re-scan
// every descriptor they care about.
type Notifier interface {
	// Register adds fd to the watch set. The descriptor must already be
	// in non-blocking mode.
	Register(fd int, onReady ReadyFunc) error

	// Unregister removes fd. Call before closing the descriptor.
	Unregister(fd int) error

	// Start launches the delivery goroutine. Calling Start twice is a no-op.
	Start()

	// Close stops delivery and releases the notifier's descriptors.
	Close() error
}

// Flag is a single-word "something changed since last checked" marker.
// It is not a queue: any number of Raise calls collapse into one.
type Flag struct {
	v atomic.Bool
}

// Raise marks the flag. Safe from any goroutine.
func (f *Flag) Raise() { f.v.Store(true) }

// Pending reports whether the flag is raised.
func (f *Flag) Pending() bool { return f.v.Load() }

// Clear lowers the flag.
func (f *Flag) Clear() { f.v.Store(false) }
