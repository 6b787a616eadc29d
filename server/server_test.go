//go:build linux

// Author: momentics <momentics@gmail.com>
//
// End-to-end tests over a real AF_UNIX socket.

package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
	"github.com/momentics/sockmux/control"
	"github.com/momentics/sockmux/internal/report"
	"github.com/momentics/sockmux/reactor"
	"github.com/momentics/sockmux/server"
)

const waitFor = 2 * time.Second

// socketPath returns a path short enough for sun_path.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "mux")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

type harness struct {
	srv    *server.Server
	rec    *report.Recorder
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, cfg server.Config, opts ...server.ServerOption) *harness {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = socketPath(t)
	}
	rec := &report.Recorder{}
	opts = append([]server.ServerOption{server.WithReporter(rec)}, opts...)
	srv, err := server.New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, rec: rec, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-srv.Done()
	})
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	c, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (h *harness) waitActive(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.srv.Active() == n },
		waitFor, 5*time.Millisecond, "want %d active, have %d", n, h.srv.Active())
}

func (h *harness) waitData(t *testing.T, serial uint64, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return string(h.rec.Data(serial)) == want },
		waitFor, 5*time.Millisecond, "serial %d: have %q", serial, h.rec.Data(serial))
}

func expectEOF(t *testing.T, c net.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(waitFor)))
	_, err := c.Read(make([]byte, 16))
	assert.ErrorIs(t, err, io.EOF)
}

func TestUppercaseEchoAndDisconnect(t *testing.T) {
	h := startServer(t, server.DefaultConfig())
	c := dial(t, h.srv.Path())
	h.waitActive(t, 1)

	_, err := c.Write([]byte("hello\n"))
	require.NoError(t, err)
	h.waitData(t, 1, "HELLO\n")
	assert.Empty(t, h.rec.Filter(report.KindDisconnected))

	require.NoError(t, c.Close())
	h.waitActive(t, 0)
	require.Eventually(t, func() bool { return len(h.rec.Filter(report.KindDisconnected)) == 1 },
		waitFor, 5*time.Millisecond)

	conn := h.rec.Filter(report.KindConnected)
	require.Len(t, conn, 1)
	assert.Equal(t, conn[0].ID, h.rec.Filter(report.KindDisconnected)[0].ID)
	assert.Equal(t, int64(6), h.srv.Metrics().Counter(control.MetricBytesRead))
	assert.Equal(t, int64(1), h.srv.Metrics().Counter(control.MetricAccepted))
}

func TestChunksNeverExceedBuffer(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.BufferSize = 8
	h := startServer(t, cfg)
	c := dial(t, h.srv.Path())
	h.waitActive(t, 1)

	msg := "the quick brown fox jumps\n"
	_, err := c.Write([]byte(msg))
	require.NoError(t, err)
	h.waitData(t, 1, strings.ToUpper(msg))

	for _, ev := range h.rec.Filter(report.KindChunk) {
		assert.LessOrEqual(t, len(ev.Data), cfg.BufferSize-1)
	}
}

func TestIndependentClients(t *testing.T) {
	h := startServer(t, server.DefaultConfig())
	a := dial(t, h.srv.Path())
	h.waitActive(t, 1)
	b := dial(t, h.srv.Path())
	h.waitActive(t, 2)

	_, err := a.Write([]byte("alpha"))
	require.NoError(t, err)
	_, err = b.Write([]byte("Beta-2"))
	require.NoError(t, err)
	h.waitData(t, 1, "ALPHA")
	h.waitData(t, 2, "BETA-2")

	require.NoError(t, a.Close())
	h.waitActive(t, 1)
	_, err = b.Write([]byte("!"))
	require.NoError(t, err)
	h.waitData(t, 2, "BETA-2!")
}

func TestRejectWhenFull(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxClients = 2
	h := startServer(t, cfg)

	dial(t, h.srv.Path())
	dial(t, h.srv.Path())
	h.waitActive(t, 2)

	extra := dial(t, h.srv.Path())
	expectEOF(t, extra)
	require.Eventually(t, func() bool { return len(h.rec.Filter(report.KindRejected)) == 1 },
		waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, h.srv.Active())
	assert.Equal(t, int64(1), h.srv.Metrics().Counter(control.MetricRejected))
}

func TestSlotReuse(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.MaxClients = 1
	h := startServer(t, cfg)

	first := dial(t, h.srv.Path())
	h.waitActive(t, 1)
	require.NoError(t, first.Close())
	h.waitActive(t, 0)

	second := dial(t, h.srv.Path())
	h.waitActive(t, 1)
	_, err := second.Write([]byte("again"))
	require.NoError(t, err)
	h.waitData(t, 2, "AGAIN")

	conn := h.rec.Filter(report.KindConnected)
	require.Len(t, conn, 2)
	assert.Equal(t, conn[0].ID.Slot, conn[1].ID.Slot)
	assert.Empty(t, h.rec.Filter(report.KindRejected))
}

func TestShutdownClosesPeersAndRemovesPath(t *testing.T) {
	h := startServer(t, server.DefaultConfig())
	a := dial(t, h.srv.Path())
	b := dial(t, h.srv.Path())
	h.waitActive(t, 2)

	h.stop(t)
	expectEOF(t, a)
	expectEOF(t, b)
	_, err := os.Stat(h.srv.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket path still present: %v", err)
	assert.Equal(t, 0, h.srv.Active())
	assert.Len(t, h.rec.Filter(report.KindShutdown), 1)

	// Idempotent.
	assert.NoError(t, h.srv.Shutdown())
	assert.Len(t, h.rec.Filter(report.KindShutdown), 1)
}

func TestShutdownFromAnotherGoroutine(t *testing.T) {
	h := startServer(t, server.DefaultConfig())
	c := dial(t, h.srv.Path())
	h.waitActive(t, 1)

	require.NoError(t, h.srv.Shutdown())
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after Shutdown")
	}
	expectEOF(t, c)
}

func TestShutdownBeforeRun(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.SocketPath = socketPath(t)
	srv, err := server.New(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Shutdown())

	_, err = os.Stat(cfg.SocketPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.ErrorIs(t, srv.Run(context.Background()), server.ErrNotStarted)
}

// clientRefusingNotifier accepts the listener registration and fails every
// later one, leaving client slots to the polling fallback.
type clientRefusingNotifier struct {
	reactor.Notifier
	calls atomic.Int32
}

func (n *clientRefusingNotifier) Register(fd int, fn reactor.ReadyFunc) error {
	if n.calls.Add(1) == 1 {
		return n.Notifier.Register(fd, fn)
	}
	return errors.New("registration refused")
}

func TestFallbackServesUnregisteredClients(t *testing.T) {
	inner, err := reactor.NewNotifier()
	require.NoError(t, err)
	notifier := &clientRefusingNotifier{Notifier: inner}

	cfg := server.DefaultConfig()
	cfg.ServiceInterval = time.Hour
	h := startServer(t, cfg, server.WithNotifier(notifier))

	c := dial(t, h.srv.Path())
	h.waitActive(t, 1)
	_, err = c.Write([]byte("fallback"))
	require.NoError(t, err)
	h.waitData(t, 1, "FALLBACK")

	m := h.srv.Metrics()
	assert.Equal(t, int64(1), m.Counter(control.MetricNotifyFailures))
	assert.Positive(t, m.Counter(control.MetricFallbackHits))

	require.NoError(t, c.Close())
	h.waitActive(t, 0)
}

func TestWithoutNotifier(t *testing.T) {
	h := startServer(t, server.DefaultConfig(), server.WithoutNotifier())
	c := dial(t, h.srv.Path())
	h.waitActive(t, 1)
	_, err := c.Write([]byte("polled"))
	require.NoError(t, err)
	h.waitData(t, 1, "POLLED")
}

func TestStartRefusesNonSocketPath(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.SocketPath = socketPath(t)
	require.NoError(t, os.WriteFile(cfg.SocketPath, []byte("keep me"), 0o600))

	srv, err := server.New(cfg)
	require.NoError(t, err)
	err = srv.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Equal(t, api.ErrCodeBind, api.CodeOf(err))

	data, err := os.ReadFile(cfg.SocketPath)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestStartRemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Bind(fd, &unix.SockaddrUnix{Name: path}))
	require.NoError(t, unix.Close(fd))

	cfg := server.DefaultConfig()
	cfg.SocketPath = path
	h := startServer(t, cfg)
	c := dial(t, path)
	h.waitActive(t, 1)
	_, err = c.Write([]byte("x"))
	require.NoError(t, err)
	h.waitData(t, 1, "X")
}

func TestStartTwice(t *testing.T) {
	h := startServer(t, server.DefaultConfig())
	assert.ErrorIs(t, h.srv.Start(), server.ErrAlreadyRunning)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*server.Config)
	}{
		{"empty path", func(c *server.Config) { c.SocketPath = "" }},
		{"no clients", func(c *server.Config) { c.MaxClients = 0 }},
		{"tiny buffer", func(c *server.Config) { c.BufferSize = 1 }},
		{"zero poll", func(c *server.Config) { c.PollInterval = 0 }},
		{"negative backlog", func(c *server.Config) { c.Backlog = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := server.DefaultConfig()
			tt.mod(&cfg)
			_, err := server.New(cfg)
			assert.ErrorIs(t, err, api.ErrInvalidArgument)
		})
	}
}
