// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/sockmux/api"
	"github.com/momentics/sockmux/control"
	"github.com/momentics/sockmux/reactor"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithReporter sets the operator output sink.
func WithReporter(r api.Reporter) ServerOption {
	return func(s *Server) {
		s.reporter = r
	}
}

// WithNotifier injects a readiness notifier instead of the platform one.
// The server takes ownership and closes it on shutdown.
func WithNotifier(n reactor.Notifier) ServerOption {
	return func(s *Server) {
		s.notifier = n
	}
}

// WithoutNotifier disables the asynchronous fast path; every event is then
// found by the periodic service pass and the polling fallback.
func WithoutNotifier() ServerOption {
	return func(s *Server) {
		s.notifyOff = true
	}
}

// WithMetrics shares a metrics registry with the caller.
func WithMetrics(m *control.MetricsRegistry) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithProbes registers the server's debug probes in dp.
func WithProbes(dp api.Debug) ServerOption {
	return func(s *Server) {
		s.probes = dp
	}
}
