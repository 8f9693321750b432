// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build unix

package lockprobe_test

import (
	"os"
	"path/filepath"

	jc "github.com/juju/testing/checkers"
	"golang.org/x/sys/unix"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/internal/lockprobe"
)

func (s *probeSuite) TestFlockHeldIsLocked(c *gc.C) {
	path := filepath.Join(s.dir, "chunks.sqlite")
	err := os.WriteFile(path, nil, 0644)
	c.Assert(err, jc.ErrorIsNil)

	holder, err := os.Open(path)
	c.Assert(err, jc.ErrorIsNil)
	defer holder.Close()
	err = unix.Flock(int(holder.Fd()), unix.LOCK_EX)
	c.Assert(err, jc.ErrorIsNil)

	state, err := lockprobe.Probe(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(state, gc.Equals, lockprobe.Locked)

	err = unix.Flock(int(holder.Fd()), unix.LOCK_UN)
	c.Assert(err, jc.ErrorIsNil)

	state, err = lockprobe.Probe(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(state, gc.Equals, lockprobe.Free)
}
