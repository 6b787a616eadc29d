// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package slots

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/sockmux/api"
	"github.com/momentics/sockmux/pool"
)

// Empty is the handle sentinel of an unoccupied slot.
const Empty = -1

// CloseFunc closes a connection handle.
type CloseFunc func(fd int) error

// Slot tracks one accepted peer connection.
type Slot struct {
	FD      int
	ID      api.ConnID
	Buf     []byte
	Pending int
	// DataReady is raised by the readiness notifier and cleared by the loop.
	DataReady atomic.Bool
	// Pass is the loop pass that last read from this slot.
	Pass uint64
}

// Active reports whether the slot holds a live connection.
func (s *Slot) Active() bool { return s.FD != Empty }

// Table is the connection slot table. It is owned by the server loop and
// is not safe for concurrent mutation; only Slot.DataReady may be touched
// from other goroutines.
type Table struct {
	slots  []Slot
	arena  *pool.Arena
	close  CloseFunc
	active int
}

// New creates a table of capacity slots with bufSize read buffers.
func New(capacity, bufSize int, closeFn CloseFunc) (*Table, error) {
	if closeFn == nil {
		return nil, fmt.Errorf("slot table: nil close func: %w", api.ErrInvalidArgument)
	}
	arena, err := pool.NewArena(capacity, bufSize)
	if err != nil {
		return nil, fmt.Errorf("slot table: %w", err)
	}
	t := &Table{
		slots: make([]Slot, capacity),
		arena: arena,
		close: closeFn,
	}
	for i := range t.slots {
		t.slots[i].FD = Empty
		t.slots[i].Buf = arena.Buffer(i)
	}
	return t, nil
}

// Allocate returns the index of the first empty slot, or ErrNoCapacity.
func (t *Table) Allocate() (int, error) {
	for i := range t.slots {
		if t.slots[i].FD == Empty {
			return i, nil
		}
	}
	return -1, api.ErrNoCapacity
}

// Occupy records an accepted connection in slot i. The slot must have
// been returned by Allocate and not yet occupied.
func (t *Table) Occupy(i, fd int, id api.ConnID) error {
	if i < 0 || i >= len(t.slots) || fd < 0 {
		return fmt.Errorf("occupy slot %d fd %d: %w", i, fd, api.ErrInvalidArgument)
	}
	s := &t.slots[i]
	if s.FD != Empty {
		return fmt.Errorf("occupy slot %d: already holds fd %d: %w", i, s.FD, api.ErrInvalidArgument)
	}
	for j := range t.slots {
		if t.slots[j].FD == fd {
			return fmt.Errorf("occupy slot %d: fd %d already in slot %d: %w", i, fd, j, api.ErrInvalidArgument)
		}
	}
	s.FD = fd
	s.ID = id
	s.Pending = 0
	s.Pass = 0
	s.DataReady.Store(false)
	t.active++
	return nil
}

// Release closes the connection held by slot i and marks it empty.
// Releasing an empty or out-of-range slot is a no-op. The close error, if
// any, is returned after the slot has been emptied.
func (t *Table) Release(i int) error {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	s := &t.slots[i]
	if s.FD == Empty {
		return nil
	}
	fd := s.FD
	s.FD = Empty
	s.ID = api.ConnID{}
	s.Pending = 0
	s.DataReady.Store(false)
	t.active--
	return t.close(fd)
}

// ForEachActive calls fn for every occupied slot in ascending index order.
// fn may release the slot it is given.
func (t *Table) ForEachActive(fn func(i int, s *Slot)) {
	for i := range t.slots {
		if t.slots[i].FD != Empty {
			fn(i, &t.slots[i])
		}
	}
}

// Drain releases every occupied slot and returns the first close error.
func (t *Table) Drain() error {
	var first error
	for i := range t.slots {
		if err := t.Release(i); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Get returns slot i, or nil when i is out of range.
func (t *Table) Get(i int) *Slot {
	if i < 0 || i >= len(t.slots) {
		return nil
	}
	return &t.slots[i]
}

// Active returns the number of occupied slots.
func (t *Table) Active() int { return t.active }

// Cap returns the fixed capacity.
func (t *Table) Cap() int { return len(t.slots) }
