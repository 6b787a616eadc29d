// File: server/server.go
// Package server implements the Unix-domain connection multiplexer: startup,
// the single-threaded service loop with its polling fallback, and shutdown.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
	"github.com/momentics/sockmux/control"
	"github.com/momentics/sockmux/internal/slots"
	"github.com/momentics/sockmux/reactor"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotStarted     = errors.New("server not started")
)

// Server owns the listening endpoint, the slot table and the readiness
// flag. Everything except Shutdown, Active and the metrics registry is
// confined to the goroutine that calls Start and Run.
type Server struct {
	cfg       Config
	log       zerolog.Logger
	reporter  api.Reporter
	metrics   *control.MetricsRegistry
	probes    api.Debug
	notifier  reactor.Notifier
	notifyOff bool

	table     *slots.Table
	ready     reactor.Flag
	slotReady []reactor.ReadyFunc

	listenFD    int
	serial      uint64
	pass        uint64
	lastService time.Time
	pollFDs     []unix.PollFd
	pollSlots   []int

	active   atomic.Int64
	started  atomic.Bool
	running  atomic.Bool
	stopReq  atomic.Bool
	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// New builds a Server. No descriptor is opened until Start.
func New(cfg Config, opts ...ServerOption) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		log:      zerolog.Nop(),
		reporter: nopReporter{},
		listenFD: -1,
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = control.NewMetricsRegistry()
	}

	table, err := slots.New(cfg.MaxClients, cfg.BufferSize, unix.Close)
	if err != nil {
		return nil, err
	}
	s.table = table
	s.pollFDs = make([]unix.PollFd, 0, cfg.MaxClients)
	s.pollSlots = make([]int, 0, cfg.MaxClients)

	// Per-slot callbacks are built once so accepting never allocates one.
	s.slotReady = make([]reactor.ReadyFunc, cfg.MaxClients)
	for i := range s.slotReady {
		sl := table.Get(i)
		s.slotReady[i] = func() {
			sl.DataReady.Store(true)
			s.ready.Raise()
		}
	}

	if s.probes != nil {
		s.probes.RegisterProbe(control.MetricActiveSlots, func() any { return s.active.Load() })
		s.probes.RegisterProbe("slots.capacity", func() any { return cfg.MaxClients })
		s.probes.RegisterProbe("listener.path", func() any { return cfg.SocketPath })
	}
	return s, nil
}

// Start brings up the listening endpoint: stale path removal, socket, bind,
// listen and readiness registration. Any failure is fatal and leaves no
// descriptor or path behind.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	path := s.cfg.SocketPath
	if err := removeStale(path); err != nil {
		return api.Wrap(api.ErrCodeBind, "remove stale socket", err).WithContext("path", path)
	}
	fd, err := listenUnix(path, s.cfg.Backlog)
	if err != nil {
		return err
	}
	s.listenFD = fd
	s.reporter.Listening(path)
	s.log.Info().Str("path", path).Int("max_clients", s.cfg.MaxClients).
		Int("buffer_size", s.cfg.BufferSize).Bool("notify", !s.notifyOff).
		Msg("listening")

	if !s.notifyOff {
		if err := s.startNotifier(); err != nil {
			s.closeListener()
			return err
		}
	}
	s.lastService = time.Now()
	s.reporter.Ready()
	s.reporter.Flush()
	return nil
}

func (s *Server) startNotifier() error {
	if s.notifier == nil {
		n, err := reactor.NewNotifier()
		if err != nil {
			return api.Wrap(api.ErrCodeNotify, "create notifier", err)
		}
		s.notifier = n
	}
	if err := s.notifier.Register(s.listenFD, s.ready.Raise); err != nil {
		s.notifier.Close()
		s.notifier = nil
		return api.Wrap(api.ErrCodeNotify, "register listener", err)
	}
	s.notifier.Start()
	return nil
}

// ListenAndServe is Start followed by Run.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Run(ctx)
}

// Shutdown releases every occupied slot, closes the listener and the
// notifier and removes the socket path. It is idempotent; while Run is
// active it only requests the stop and waits for the loop to perform it.
func (s *Server) Shutdown() error {
	s.stopReq.Store(true)
	if s.running.Load() {
		<-s.stopped
		return s.stopErr
	}
	s.stop()
	return s.stopErr
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		defer close(s.stopped)
		if !s.started.Load() {
			return
		}
		s.reporter.ShuttingDown()
		var errs []error
		if s.notifier != nil {
			errs = append(errs, s.notifier.Close())
		}
		if err := s.table.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("close connections: %w", err))
		}
		s.active.Store(0)
		s.metrics.Set(control.MetricActiveSlots, int64(0))
		errs = append(errs, s.closeListener())
		s.stopErr = errors.Join(errs...)

		ev := s.log.Info().
			Str("bytes_read", humanize.Bytes(uint64(s.metrics.Counter(control.MetricBytesRead)))).
			Interface("metrics", s.metrics.GetSnapshot())
		if s.probes != nil {
			ev = ev.Interface("probes", s.probes.DumpState())
		}
		ev.Msg("shutdown complete")
	})
}

func (s *Server) closeListener() error {
	if s.listenFD < 0 {
		return nil
	}
	var errs []error
	if err := unix.Close(s.listenFD); err != nil {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}
	s.listenFD = -1
	if err := unix.Unlink(s.cfg.SocketPath); err != nil && !errors.Is(err, unix.ENOENT) {
		errs = append(errs, fmt.Errorf("unlink %s: %w", s.cfg.SocketPath, err))
	}
	return errors.Join(errs...)
}

// Active returns the number of occupied slots. Safe from any goroutine.
func (s *Server) Active() int { return int(s.active.Load()) }

// Metrics returns the server's metrics registry.
func (s *Server) Metrics() *control.MetricsRegistry { return s.metrics }

// Path returns the socket path the server listens on.
func (s *Server) Path() string { return s.cfg.SocketPath }

// Done is closed once shutdown has completed.
func (s *Server) Done() <-chan struct{} { return s.stopped }

var _ api.GracefulShutdown = (*Server)(nil)

type nopReporter struct{}

func (nopReporter) Listening(string) {}
func (nopReporter) Ready() {}
func (nopReporter) Connected(api.ConnID) {}
func (nopReporter) Rejected(int) {}
func (nopReporter) Chunk(api.ConnID, []byte) {}
func (nopReporter) Disconnected(api.ConnID) {}
func (nopReporter) ShuttingDown() {}
func (nopReporter) Flush() {}
