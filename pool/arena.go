// File: pool/arena.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-capacity buffer arena: one contiguous allocation carved into
// equally sized, non-overlapping buffers addressed by index.

package pool

import (
	"fmt"

	"github.com/momentics/sockmux/api"
)

// Arena owns count buffers of size bytes each. Buffers are never resized
// or returned to the runtime while the arena lives.
type Arena struct {
	mem   []byte
	size  int
	count int
}

// NewArena allocates an arena of count buffers, size bytes each.
func NewArena(count, size int) (*Arena, error) {
	if count <= 0 || size <= 0 {
		return nil, fmt.Errorf("arena %dx%d: %w", count, size, api.ErrInvalidArgument)
	}
	return &Arena{
		mem:   make([]byte, count*size),
		size:  size,
		count: count,
	}, nil
}

// Buffer returns the i-th buffer. The slice has capacity capped at the
// buffer size so appends cannot spill into a neighbour.
func (a *Arena) Buffer(i int) []byte {
	off := i * a.size
	return a.mem[off : off+a.size : off+a.size]
}

// Len returns the number of buffers.
func (a *Arena) Len() int { return a.count }

// BufferSize returns the size of each buffer.
func (a *Arena) BufferSize() int { return a.size }
