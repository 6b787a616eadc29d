//go:build linux

package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollPollDispatchesCallback(t *testing.T) {
	n, err := newEpollNotifier()
	require.NoError(t, err)
	defer n.Close()

	a, b := socketPair(t)
	var hits atomic.Int32
	require.NoError(t, n.Register(a, func() { hits.Add(1) }))

	_, err = unix.Write(b, []byte("ping"))
	require.NoError(t, err)

	cnt, err := n.Poll(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
	assert.Equal(t, int32(1), hits.Load())

	// Edge-triggered: no new data, no new event.
	cnt, err = n.Poll(0)
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestEpollStartDeliversAndCloseStops(t *testing.T) {
	n, err := NewNotifier()
	require.NoError(t, err)

	a, b := socketPair(t)
	var flag Flag
	require.NoError(t, n.Register(a, flag.Raise))
	n.Start()
	n.Start()

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	require.Eventually(t, flag.Pending, 2*time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- n.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the delivery goroutine")
	}

	assert.ErrorIs(t, n.Register(b, flag.Raise), api.ErrClosed)
	assert.NoError(t, n.Close(), "second Close is a no-op")
}

func TestEpollUnregister(t *testing.T) {
	n, err := newEpollNotifier()
	require.NoError(t, err)
	defer n.Close()

	a, b := socketPair(t)
	var hits atomic.Int32
	require.NoError(t, n.Register(a, func() { hits.Add(1) }))
	require.NoError(t, n.Unregister(a))
	assert.ErrorIs(t, n.Unregister(a), api.ErrNotFound)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	cnt, err := n.Poll(50)
	require.NoError(t, err)
	assert.Zero(t, cnt)
	assert.Zero(t, hits.Load())
}

func TestEpollRecoversCallbackPanic(t *testing.T) {
	n, err := newEpollNotifier()
	require.NoError(t, err)
	defer n.Close()

	a, b := socketPair(t)
	require.NoError(t, n.Register(a, func() { panic("boom") }))
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, err = n.Poll(1000)
	})
	assert.NoError(t, err)
}

func TestEpollRegisterInvalid(t *testing.T) {
	n, err := newEpollNotifier()
	require.NoError(t, err)
	defer n.Close()

	assert.ErrorIs(t, n.Register(-1, func() {}), api.ErrInvalidArgument)
	a, _ := socketPair(t)
	assert.ErrorIs(t, n.Register(a, nil), api.ErrInvalidArgument)
	assert.Error(t, n.Register(a+1000, func() {}), "unknown descriptor rejected by epoll_ctl")
}
