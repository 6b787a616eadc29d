//go:build linux

package server

import "golang.org/x/sys/unix"

// acceptConn accepts one pending connection already in non-blocking,
// close-on-exec mode.
func acceptConn(lfd int) (int, error) {
	fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return fd, err
}
