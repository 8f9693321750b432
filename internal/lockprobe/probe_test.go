// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package lockprobe_test

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/internal/lockprobe"
)

type probeSuite struct {
	testing.IsolationSuite
	dir string
}

var _ = gc.Suite(&probeSuite{})

func (s *probeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.dir = c.MkDir()
}

func (s *probeSuite) TestMissingFileIsFree(c *gc.C) {
	state, err := lockprobe.Probe(filepath.Join(s.dir, "nope.sqlite"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(state, gc.Equals, lockprobe.Free)
}

func (s *probeSuite) TestUnlockedFileIsFree(c *gc.C) {
	path := filepath.Join(s.dir, "chunks.sqlite")
	err := os.WriteFile(path, []byte("data"), 0644)
	c.Assert(err, jc.ErrorIsNil)

	state, err := lockprobe.Probe(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(state, gc.Equals, lockprobe.Free)

	// Probing leaves the file untouched.
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "data")
}

func (s *probeSuite) TestEmptyPath(c *gc.C) {
	state, err := lockprobe.Probe("")
	c.Check(err, jc.ErrorIs, errors.NotValid)
	c.Check(state, gc.Equals, lockprobe.Unknown)
}

func (s *probeSuite) TestStateString(c *gc.C) {
	c.Check(lockprobe.Free.String(), gc.Equals, "free")
	c.Check(lockprobe.Locked.String(), gc.Equals, "locked")
	c.Check(lockprobe.Unknown.String(), gc.Equals, "unknown")
}
