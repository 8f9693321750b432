// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package lockprobe

import (
	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

func probe(path string) (State, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Unknown, errors.Trace(err)
	}
	// A zero share mode fails with a sharing violation while any other
	// handle is open without FILE_SHARE_* compatibility.
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_SHARING_VIOLATION),
			errors.Is(err, windows.ERROR_LOCK_VIOLATION):
			return Locked, nil
		case errors.Is(err, windows.ERROR_FILE_NOT_FOUND),
			errors.Is(err, windows.ERROR_PATH_NOT_FOUND):
			return Free, nil
		}
		return Unknown, errors.Annotatef(err, "opening %q exclusively", path)
	}
	if err := windows.CloseHandle(h); err != nil {
		return Unknown, errors.Annotatef(err, "closing %q", path)
	}
	return Free, nil
}
