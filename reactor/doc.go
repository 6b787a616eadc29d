// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness notifier used as the fast path of
// the server loop: an epoll interest set (Linux) drained by one goroutine
// whose only effect per event is the registered callback, plus the
// process-wide readiness Flag those callbacks raise.
package reactor
