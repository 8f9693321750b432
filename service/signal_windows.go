// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

// terminate ends pid. Windows has no polite equivalent of SIGTERM for a
// detached console process, so both modes terminate immediately.
func terminate(pid int, _ bool) error {
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return errors.NotFoundf("process %d", pid)
		}
		return errors.Annotatef(err, "opening process %d", pid)
	}
	defer windows.CloseHandle(h)
	return errors.Annotatef(windows.TerminateProcess(h, 1), "terminating %d", pid)
}
