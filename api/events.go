// File: api/events.go
// Package api defines core event types for sockmux.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "fmt"

// ConnID identifies one accepted peer for the lifetime of its slot.
// Serial is unique per process; FD and Slot may be reused after release.
type ConnID struct {
	Serial uint64
	Slot   int
	FD     int
}

func (id ConnID) String() string {
	return fmt.Sprintf("fd=%d", id.FD)
}

// Reporter receives operator-facing lifecycle and data events from the
// server loop. Implementations are called from the loop goroutine only.
// Chunk slices are only valid for the duration of the call.
type Reporter interface {
	Listening(path string)
	Ready()
	Connected(id ConnID)
	Rejected(fd int)
	Chunk(id ConnID, data []byte)
	Disconnected(id ConnID)
	ShuttingDown()
	// Flush is called once per loop pass after all events of the pass.
	Flush()
}
