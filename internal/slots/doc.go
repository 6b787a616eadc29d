// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package slots implements the fixed-capacity connection slot table.
// Capacity is set once at construction and never changes; each slot owns
// one read buffer carved from a pool.Arena.
package slots
