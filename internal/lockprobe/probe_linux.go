// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package lockprobe

import "golang.org/x/sys/unix"

// Open file description locks conflict with record locks held by any
// owner, including other descriptors in this process.
const getLockCmd = unix.F_OFD_GETLK
