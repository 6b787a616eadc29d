//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without epoll.

package reactor

import (
	"fmt"
	"runtime"

	"github.com/momentics/sockmux/api"
)

// NewNotifier returns ErrNotSupported; run the server with notification
// disabled to rely on the polling fallback alone.
func NewNotifier() (Notifier, error) {
	return nil, fmt.Errorf("reactor: epoll on %s: %w", runtime.GOOS, api.ErrNotSupported)
}
