// Package api
// Author: momentics
//
// Runtime introspection contract shared by the server and its probes.

package api

// Debug exposes named probes evaluated on demand.
type Debug interface {
	// DumpState evaluates every registered probe.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a probe.
	RegisterProbe(name string, fn func() any)
}
