// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Service loop: readiness-triggered (or interval-forced) accept and read
// passes, followed every pass by a zero-timeout poll(2) fallback over all
// occupied slots.

package server

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
	"github.com/momentics/sockmux/control"
	"github.com/momentics/sockmux/internal/slots"
	"github.com/momentics/sockmux/internal/transform"
)

// Run serves until ctx is cancelled or Shutdown is called, then performs
// shutdown on the loop goroutine and returns its result. Per-connection
// failures never end the loop.
func (s *Server) Run(ctx context.Context) error {
	if !s.started.Load() || s.listenFD < 0 {
		return ErrNotStarted
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()
	for {
		if s.stopReq.Load() || ctx.Err() != nil {
			s.stop()
			return s.stopErr
		}
		s.runPass(time.Now())
		s.reporter.Flush()

		timer.Reset(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// runPass executes one IDLE -> SERVICING -> IDLE cycle.
func (s *Server) runPass(now time.Time) {
	s.pass++
	s.metrics.Add(control.MetricPasses, 1)

	if s.ready.Pending() || now.Sub(s.lastService) >= s.cfg.ServiceInterval {
		s.lastService = now
		s.metrics.Add(control.MetricServicing, 1)
		s.acceptPending()
		s.table.ForEachActive(s.service)
	}
	s.fallback()
	s.ready.Clear()
}

// acceptPending drains the listen queue until accept would block.
func (s *Server) acceptPending() {
	for {
		fd, err := acceptConn(s.listenFD)
		if err != nil {
			switch {
			case wouldBlock(err):
			case errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				s.metrics.Add(control.MetricAcceptErrors, 1)
				s.log.Error().Err(err).Msg("accept")
			}
			return
		}
		s.admit(fd)
	}
}

// admit places an accepted descriptor in a free slot, or closes it when
// the table is full.
func (s *Server) admit(fd int) {
	idx, err := s.table.Allocate()
	if err != nil {
		s.reporter.Rejected(fd)
		s.metrics.Add(control.MetricRejected, 1)
		s.log.Warn().Int("fd", fd).Int("max_clients", s.table.Cap()).Msg("no free slots, rejecting client")
		unix.Close(fd)
		return
	}
	s.serial++
	id := api.ConnID{Serial: s.serial, Slot: idx, FD: fd}
	if err := s.table.Occupy(idx, fd, id); err != nil {
		s.log.Error().Err(err).Int("fd", fd).Msg("occupy slot")
		unix.Close(fd)
		return
	}
	if s.notifier != nil {
		if err := s.notifier.Register(fd, s.slotReady[idx]); err != nil {
			s.metrics.Add(control.MetricNotifyFailures, 1)
			s.log.Warn().Err(err).Int("fd", fd).Msg("readiness registration failed, serving by polling fallback")
		}
	}
	s.setActive()
	s.metrics.Add(control.MetricAccepted, 1)
	s.reporter.Connected(id)
	s.log.Debug().Int("fd", fd).Int("slot", idx).Uint64("serial", id.Serial).Msg("client connected")
}

// service performs one non-blocking read on slot i.
func (s *Server) service(i int, sl *slots.Slot) {
	sl.Pass = s.pass
	sl.DataReady.Store(false)

	n, err := unix.Read(sl.FD, sl.Buf[:len(sl.Buf)-1])
	switch {
	case err != nil:
		if wouldBlock(err) {
			return
		}
		s.metrics.Add(control.MetricReadErrors, 1)
		s.log.Warn().Err(err).Int("fd", sl.FD).Msg("read")
		s.evict(i, sl)
	case n == 0:
		s.evict(i, sl)
	default:
		sl.Pending = n
		chunk := sl.Buf[:n]
		transform.UpperInPlace(chunk)
		s.reporter.Chunk(sl.ID, chunk)
		sl.Pending = 0
		s.metrics.Add(control.MetricChunks, 1)
		s.metrics.Add(control.MetricBytesRead, int64(n))
	}
}

// evict reports the disconnect and frees the slot.
func (s *Server) evict(i int, sl *slots.Slot) {
	id := sl.ID
	if s.notifier != nil {
		_ = s.notifier.Unregister(sl.FD)
	}
	if err := s.table.Release(i); err != nil {
		s.log.Warn().Err(err).Int("fd", id.FD).Msg("close")
	}
	s.setActive()
	s.metrics.Add(control.MetricDisconnected, 1)
	s.reporter.Disconnected(id)
	s.log.Debug().Int("fd", id.FD).Int("slot", i).Uint64("serial", id.Serial).Msg("client disconnected")
}

// fallback polls every occupied slot with a zero timeout and services the
// ready ones this pass has not read yet. It runs every pass so readiness
// the notifier coalesced or lost is still picked up.
func (s *Server) fallback() {
	fds := s.pollFDs[:0]
	idx := s.pollSlots[:0]
	s.table.ForEachActive(func(i int, sl *slots.Slot) {
		fds = append(fds, unix.PollFd{Fd: int32(sl.FD), Events: unix.POLLIN})
		idx = append(idx, i)
	})
	s.pollFDs, s.pollSlots = fds, idx
	if len(fds) == 0 {
		return
	}

	n, err := unix.Poll(fds, 0)
	if err != nil {
		if !errors.Is(err, unix.EINTR) {
			s.log.Warn().Err(err).Msg("fallback poll")
		}
		return
	}
	if n == 0 {
		return
	}
	for k := range fds {
		if fds[k].Revents == 0 {
			continue
		}
		sl := s.table.Get(idx[k])
		if !sl.Active() || sl.FD != int(fds[k].Fd) || sl.Pass == s.pass {
			continue
		}
		s.metrics.Add(control.MetricFallbackHits, 1)
		s.service(idx[k], sl)
	}
}

func (s *Server) setActive() {
	n := int64(s.table.Active())
	s.active.Store(n)
	s.metrics.Set(control.MetricActiveSlots, n)
}
