// File: internal/report/recorder.go
// Author: momentics <momentics@gmail.com>
//
// In-memory reporter used by tests and embedding callers.

package report

import (
	"sync"

	"github.com/momentics/sockmux/api"
)

// Kind enumerates recorded event types.
type Kind int

const (
	KindListening Kind = iota
	KindReady
	KindConnected
	KindRejected
	KindChunk
	KindDisconnected
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindListening:
		return "listening"
	case KindReady:
		return "ready"
	case KindConnected:
		return "connected"
	case KindRejected:
		return "rejected"
	case KindChunk:
		return "chunk"
	case KindDisconnected:
		return "disconnected"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is one recorded report.
type Event struct {
	Kind Kind
	ID   api.ConnID
	FD   int
	Path string
	Data []byte
}

// Recorder implements api.Reporter by storing copies of every event.
// Reads are safe while the server loop is writing.
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	flushes int
}

var _ api.Reporter = (*Recorder)(nil)

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Listening(path string) { r.add(Event{Kind: KindListening, Path: path}) }
func (r *Recorder) Ready() { r.add(Event{Kind: KindReady}) }
func (r *Recorder) Connected(id api.ConnID) { r.add(Event{Kind: KindConnected, ID: id, FD: id.FD}) }
func (r *Recorder) Rejected(fd int) { r.add(Event{Kind: KindRejected, FD: fd}) }
func (r *Recorder) ShuttingDown() { r.add(Event{Kind: KindShutdown}) }

func (r *Recorder) Chunk(id api.ConnID, data []byte) {
	r.add(Event{Kind: KindChunk, ID: id, FD: id.FD, Data: append([]byte(nil), data...)})
}

func (r *Recorder) Disconnected(id api.ConnID) {
	r.add(Event{Kind: KindDisconnected, ID: id, FD: id.FD})
}

func (r *Recorder) Flush() {
	r.mu.Lock()
	r.flushes++
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Filter returns recorded events of kind k.
func (r *Recorder) Filter(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// Data concatenates every chunk recorded for the connection serial.
func (r *Recorder) Data(serial uint64) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, ev := range r.events {
		if ev.Kind == KindChunk && ev.ID.Serial == serial {
			out = append(out, ev.Data...)
		}
	}
	return out
}

// Flushes returns how many times Flush was called.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}
