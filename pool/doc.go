// Package pool
// Author: momentics <momentics@gmail.com>
//
// Preallocated read buffers for the connection slot table. One contiguous
// allocation is carved into fixed-size, capacity-capped regions so the
// service loop never allocates per read.
package pool
