// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Unix-domain listening socket helpers built directly on x/sys/unix so the
// server owns raw descriptors for non-blocking accept, read and poll.

package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/momentics/sockmux/api"
)

// removeStale unlinks a socket left behind by a previous run. A path that
// exists but is not a socket is never removed.
func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket: %w", path, api.ErrInvalidArgument)
	}
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return err
	}
	return nil
}

// listenUnix creates, binds and listens on a non-blocking AF_UNIX stream
// socket at path.
func listenUnix(path string, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, api.Wrap(api.ErrCodeSocket, "socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, api.Wrap(api.ErrCodeSocket, "set nonblock", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, api.Wrap(api.ErrCodeBind, "bind", err).WithContext("path", path)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return -1, api.Wrap(api.ErrCodeListen, "listen", err).WithContext("backlog", backlog)
	}
	return fd, nil
}

// wouldBlock reports the transient "nothing to do" conditions.
func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
