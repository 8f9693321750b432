// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd_test

import (
	"os"
	"path/filepath"

	"github.com/juju/gnuflag"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/cmd/cmdtesting"
)

type outputCommand struct {
	cmd.CommandBase
	out   cmd.Output
	value interface{}
}

func (c *outputCommand) Info() *cmd.Info {
	return &cmd.Info{Name: "output"}
}

func (c *outputCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

func (c *outputCommand) Run(ctx *cmd.Context) error {
	return c.out.Write(ctx, c.value)
}

type outputSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&outputSuite{})

type archiveValue struct {
	Name string `json:"name" yaml:"name"`
	Size int    `json:"size" yaml:"size"`
}

var outputTests = []struct {
	args   []string
	value  interface{}
	output string
}{{
	value:  archiveValue{Name: "a.zip", Size: 3},
	output: "name: a.zip\nsize: 3\n",
}, {
	args:   []string{"--format", "yaml"},
	value:  []string{"x", "y"},
	// Quoted so YAML 1.1 readers do not take it for a boolean.
	output: "- x\n- \"y\"\n",
}, {
	args:   []string{"--format", "json"},
	value:  archiveValue{Name: "a.zip", Size: 3},
	output: `{"name":"a.zip","size":3}` + "\n",
}, {
	args:   []string{"--format", "yaml"},
	value:  nil,
	output: "",
}}

func (s *outputSuite) TestOutputFormat(c *gc.C) {
	for i, t := range outputTests {
		c.Logf("test %d: %v", i, t.args)
		ctx, err := cmdtesting.RunCommand(c, &outputCommand{value: t.value}, t.args...)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(cmdtesting.Stdout(ctx), gc.Equals, t.output)
		c.Check(cmdtesting.Stderr(ctx), gc.Equals, "")
	}
}

func (s *outputSuite) TestUnknownOutputFormat(c *gc.C) {
	err := cmdtesting.InitCommand(&outputCommand{}, []string{"--format", "cuneiform"})
	c.Check(err, gc.ErrorMatches, `invalid value "cuneiform" for flag .*format: format "cuneiform" not valid`)
}

func (s *outputSuite) TestOutputToFile(c *gc.C) {
	dir := c.MkDir()
	ctx, err := cmdtesting.RunCommandInDir(c, &outputCommand{value: archiveValue{Name: "a.zip"}},
		[]string{"-o", "out.json", "--format", "json"}, dir)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, "")

	data, err := os.ReadFile(filepath.Join(dir, "out.json"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), gc.Equals, `{"name":"a.zip","size":0}`+"\n")
}
