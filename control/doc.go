// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the sockmux server.
//
// Provides concurrent-safe primitives:
//   - Counter and gauge registry with snapshot reads
//   - Named debug probes evaluated on demand
//
// The server loop updates counters; the shutdown path logs a snapshot.
package control
