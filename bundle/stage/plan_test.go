// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package stage_test

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/spf13/afero"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/bundle/stage"
)

type planSuite struct {
	testing.IsolationSuite
	fs afero.Fs
}

var _ = gc.Suite(&planSuite{})

func (s *planSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.fs = afero.NewMemMapFs()
}

func (s *planSuite) writeFile(c *gc.C, name, content string) {
	err := afero.WriteFile(s.fs, name, []byte(content), 0644)
	c.Assert(err, jc.ErrorIsNil)
}

func opStrings(plan stage.Plan) []string {
	var out []string
	for _, op := range plan {
		out = append(out, op.String())
	}
	return out
}

func (s *planSuite) TestScanMissingRootIsEmpty(c *gc.C) {
	tree, err := stage.ScanTree(s.fs, "/nowhere")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(tree, gc.HasLen, 0)
}

func (s *planSuite) TestScanTree(c *gc.C) {
	c.Assert(s.fs.MkdirAll("/src/a/b", 0755), jc.ErrorIsNil)
	s.writeFile(c, "/src/top.md", "top")
	s.writeFile(c, "/src/a/b/deep.md", "deep")

	tree, err := stage.ScanTree(s.fs, "/src")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(tree.Paths(), jc.DeepEquals, []string{"a", "a/b", "a/b/deep.md", "top.md"})
	c.Check(tree["a"].Dir, jc.IsTrue)
	c.Check(tree["top.md"].Size, gc.Equals, int64(3))
}

func (s *planSuite) TestPlanIntoEmpty(c *gc.C) {
	c.Assert(s.fs.MkdirAll("/src/a", 0755), jc.ErrorIsNil)
	s.writeFile(c, "/src/a/one.md", "1")
	s.writeFile(c, "/src/two.md", "2")

	src, err := stage.ScanTree(s.fs, "/src")
	c.Assert(err, jc.ErrorIsNil)
	plan := stage.PlanMirror(src, stage.Tree{})
	c.Check(opStrings(plan), jc.DeepEquals, []string{
		"mkdir a",
		"copy a/one.md",
		"copy two.md",
	})
}

func (s *planSuite) TestPlanRemovesExtrasDeepestFirst(c *gc.C) {
	src := stage.Tree{}
	dst := stage.Tree{
		"old":        {Path: "old", Dir: true},
		"old/x":      {Path: "old/x", Dir: true},
		"old/x/y.md": {Path: "old/x/y.md"},
		"z.md":       {Path: "z.md"},
	}
	plan := stage.PlanMirror(src, dst)
	c.Check(opStrings(plan), jc.DeepEquals, []string{
		"remove old/x/y.md",
		"remove old/x",
		"remove old",
		"remove z.md",
	})
}

func (s *planSuite) TestPlanTypeChange(c *gc.C) {
	now := time.Now()
	src := stage.Tree{
		"a": {Path: "a", Size: 1, Mode: 0644, ModTime: now},
		"b": {Path: "b", Dir: true, Mode: os.ModeDir | 0755},
	}
	dst := stage.Tree{
		"a":   {Path: "a", Dir: true, Mode: os.ModeDir | 0755},
		"a/c": {Path: "a/c", Size: 1, Mode: 0644, ModTime: now},
		"b":   {Path: "b", Size: 1, Mode: 0644, ModTime: now},
	}
	plan := stage.PlanMirror(src, dst)
	c.Check(opStrings(plan), jc.DeepEquals, []string{
		"remove a/c",
		"remove a",
		"remove b",
		"mkdir b",
		"copy a",
	})
}

func (s *planSuite) TestPlanSkipsUnchanged(c *gc.C) {
	now := time.Now()
	entry := stage.Entry{Path: "same.md", Size: 4, Mode: 0644, ModTime: now}
	changed := entry
	changed.ModTime = now.Add(time.Second)

	plan := stage.PlanMirror(
		stage.Tree{"same.md": entry, "changed.md": changed},
		stage.Tree{"same.md": entry, "changed.md": entry},
	)
	c.Check(opStrings(plan), jc.DeepEquals, []string{"copy changed.md"})
}

func (s *planSuite) TestApplyMirrorsAndIsIdempotent(c *gc.C) {
	c.Assert(s.fs.MkdirAll("/src/docs", 0755), jc.ErrorIsNil)
	s.writeFile(c, "/src/docs/manual.md", "manual text")
	s.writeFile(c, "/src/readme.md", "readme")
	c.Assert(s.fs.MkdirAll("/dst/stale", 0755), jc.ErrorIsNil)
	s.writeFile(c, "/dst/stale/gone.md", "gone")

	mirror := func() stage.Plan {
		src, err := stage.ScanTree(s.fs, "/src")
		c.Assert(err, jc.ErrorIsNil)
		dst, err := stage.ScanTree(s.fs, "/dst")
		c.Assert(err, jc.ErrorIsNil)
		return stage.PlanMirror(src, dst)
	}

	plan := mirror()
	c.Assert(plan.Empty(), jc.IsFalse)
	err := plan.Apply(s.fs, "/src", "/dst")
	c.Assert(err, jc.ErrorIsNil)

	data, err := afero.ReadFile(s.fs, "/dst/docs/manual.md")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, "manual text")
	_, err = s.fs.Stat("/dst/stale")
	c.Check(os.IsNotExist(err), jc.IsTrue)

	// A second run has nothing to do.
	c.Check(opStrings(mirror()), gc.HasLen, 0)
}

func (s *planSuite) TestApplyRejectsEscapingPath(c *gc.C) {
	plan := stage.Plan{{Kind: stage.OpCopy, Entry: stage.Entry{Path: "../etc/passwd"}}}
	err := plan.Apply(s.fs, "/src", "/dst")
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *planSuite) TestValidRelPath(c *gc.C) {
	for i, test := range []struct {
		name  string
		valid bool
	}{
		{name: "data/index/faiss.index", valid: true},
		{name: "data/raw/a..b.md", valid: true},
		{name: ""},
		{name: "/etc/passwd"},
		{name: "data/../../escape"},
		{name: "..", valid: false},
		{name: `data\raw\x.md`},
	} {
		c.Logf("test %d: %q", i, test.name)
		err := stage.ValidRelPath(test.name)
		if test.valid {
			c.Check(err, jc.ErrorIsNil)
		} else {
			c.Check(err, jc.ErrorIs, errors.NotValid)
		}
	}
}
