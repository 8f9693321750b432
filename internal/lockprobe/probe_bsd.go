// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build unix && !linux

package lockprobe

import "golang.org/x/sys/unix"

const getLockCmd = unix.F_GETLK
