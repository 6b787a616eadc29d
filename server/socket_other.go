//go:build unix && !linux

package server

import "golang.org/x/sys/unix"

// acceptConn accepts one pending connection and switches it to
// non-blocking, close-on-exec mode.
func acceptConn(lfd int) (int, error) {
	fd, _, err := unix.Accept(lfd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
