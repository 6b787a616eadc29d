//go:build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
)

const maxEvents = 128

// epollNotifier implements Notifier using an edge-triggered epoll set.
// An eventfd in the same set wakes the delivery goroutine on Close.
type epollNotifier struct {
	epfd      int
	wakefd    int
	callbacks sync.Map // map[int]ReadyFunc
	started   atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
}

// NewNotifier creates the platform notifier.
func NewNotifier() (Notifier, error) {
	return newEpollNotifier()
}

func newEpollNotifier() (*epollNotifier, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &epollNotifier{
		epfd:   epfd,
		wakefd: wakefd,
		done:   make(chan struct{}),
	}, nil
}

// Register adds a file descriptor to the epoll watch list.
func (n *epollNotifier) Register(fd int, onReady ReadyFunc) error {
	if n.closed.Load() {
		return api.ErrClosed
	}
	if fd < 0 || fd == n.wakefd || onReady == nil {
		return fmt.Errorf("epoll register fd %d: %w", fd, api.ErrInvalidArgument)
	}
	// Stored first: the first edge may arrive before EpollCtl returns.
	n.callbacks.Store(fd, onReady)
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		n.callbacks.Delete(fd)
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (n *epollNotifier) Unregister(fd int) error {
	if _, ok := n.callbacks.LoadAndDelete(fd); !ok {
		return api.ErrNotFound
	}
	if n.closed.Load() {
		return nil
	}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll waits up to timeoutMs (negative blocks) and dispatches callbacks for
// every ready descriptor. It reports errWoken when Close interrupted it.
func (n *epollNotifier) Poll(timeoutMs int) (int, error) {
	var events [maxEvents]unix.EpollEvent
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	cnt, err := unix.EpollWait(n.epfd, events[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	woken := false
	for i := 0; i < cnt; i++ {
		fd := int(events[i].Fd)
		if fd == n.wakefd {
			woken = true
			continue
		}
		val, ok := n.callbacks.Load(fd)
		if !ok {
			continue
		}
		cb, _ := val.(ReadyFunc)
		func() {
			defer func() { _ = recover() }()
			cb()
		}()
	}
	if woken {
		return cnt, errWoken
	}
	return cnt, nil
}

var errWoken = errors.New("epoll: woken by close")

// Start launches the delivery goroutine.
func (n *epollNotifier) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(n.done)
		for !n.closed.Load() {
			if _, err := n.Poll(-1); err != nil {
				if errors.Is(err, errWoken) || n.closed.Load() {
					return
				}
			}
		}
	}()
}

// Close stops the delivery goroutine and releases the epoll descriptors.
func (n *epollNotifier) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(n.wakefd, one[:])
	if n.started.Load() {
		<-n.done
	}
	n.callbacks.Range(func(k, _ any) bool {
		n.callbacks.Delete(k)
		return true
	})
	err := unix.Close(n.epfd)
	if cerr := unix.Close(n.wakefd); err == nil {
		err = cerr
	}
	return err
}
