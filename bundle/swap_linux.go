// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// exchange atomically swaps the directory entries a and b.
func exchange(a, b string) error {
	err := unix.Renameat2(unix.AT_FDCWD, a, unix.AT_FDCWD, b, unix.RENAME_EXCHANGE)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP):
		return errors.NotSupportedf("exchanging %q and %q", a, b)
	}
	return &os.LinkError{Op: "renameat2", Old: a, New: b, Err: err}
}
