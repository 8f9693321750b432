// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build unix

package service

import (
	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

func terminate(pid int, force bool) error {
	if pid <= 0 {
		// Zero and negative pids address process groups.
		return errors.NotValidf("pid %d", pid)
	}
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return errors.NotFoundf("process %d", pid)
	}
	return errors.Annotatef(err, "sending %v to %d", sig, pid)
}
