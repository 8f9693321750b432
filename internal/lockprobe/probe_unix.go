// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build unix

package lockprobe

import (
	"io"
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// probe checks both lock families a writer may use: POSIX record locks
// (SQLite's unix VFS) and BSD flock locks.
//
// Closing a descriptor drops every POSIX lock the calling process holds on
// the file, so this must not be pointed at a file the current process has
// locked through another descriptor.
func probe(path string) (State, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Free, nil
	} else if err != nil {
		return Unknown, errors.Annotatef(err, "opening %q", path)
	}
	defer f.Close()

	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: io.SeekStart,
	}
	if err := unix.FcntlFlock(f.Fd(), getLockCmd, &lk); err != nil {
		return Unknown, errors.Annotatef(err, "querying record locks on %q", path)
	}
	if lk.Type != unix.F_UNLCK {
		return Locked, nil
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return Locked, nil
		}
		return Unknown, errors.Annotatef(err, "testing flock on %q", path)
	}
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		return Unknown, errors.Annotatef(err, "releasing flock on %q", path)
	}
	return Free, nil
}
