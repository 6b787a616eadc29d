// File: internal/report/console.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Operator console: human-readable lifecycle and chunk lines, queued for
// the duration of one loop pass and written with a single Write on Flush.

package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/eapache/queue"

	"github.com/momentics/sockmux/api"
)

// Console implements api.Reporter for an operator terminal.
type Console struct {
	out     io.Writer
	pending *queue.Queue
	buf     bytes.Buffer
	err     error
}

var _ api.Reporter = (*Console)(nil)

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, pending: queue.New()}
}

func (c *Console) linef(format string, args ...any) {
	c.pending.Add(fmt.Sprintf(format, args...))
}

func (c *Console) Listening(path string) {
	c.linef("Async IO server is listening on %s\n", path)
	c.linef("Press Ctrl+C to exit\n")
}

func (c *Console) Ready() { c.linef("Server ready. Waiting for connections...\n") }

func (c *Console) Connected(id api.ConnID) {
	c.linef("New client connected (fd=%d)\n", id.FD)
}

func (c *Console) Rejected(fd int) {
	c.linef("No free slots, rejecting client (fd=%d)\n", fd)
}

// Chunk renders the chunk as received; partial lines stay partial.
func (c *Console) Chunk(id api.ConnID, data []byte) {
	c.linef("[Client %d]: %s", id.FD, data)
}

func (c *Console) Disconnected(id api.ConnID) {
	c.linef("Client (fd=%d) disconnected\n", id.FD)
}

// ShuttingDown is written through immediately: no further pass follows.
func (c *Console) ShuttingDown() {
	c.linef("\nShutting down server...\n")
	c.Flush()
}

// Flush writes every queued line in arrival order.
func (c *Console) Flush() {
	if c.pending.Length() == 0 {
		return
	}
	c.buf.Reset()
	for c.pending.Length() > 0 {
		c.buf.WriteString(c.pending.Remove().(string))
	}
	if _, err := c.out.Write(c.buf.Bytes()); err != nil && c.err == nil {
		c.err = err
	}
}

// Err returns the first write error seen by Flush.
func (c *Console) Err() error { return c.err }
