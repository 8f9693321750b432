// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmdtesting runs commands against in-memory streams.
package cmdtesting

import (
	"bytes"
	"io"

	gc "gopkg.in/check.v1"

	"github.com/manuals-rag/ragbundle/cmd"
)

// Context returns a Context rooted in a fresh directory with buffered
// streams.
func Context(c *gc.C) *cmd.Context {
	return &cmd.Context{
		Dir:    c.MkDir(),
		Stdin:  &bytes.Buffer{},
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
}

func bufferString(w io.Writer) string {
	return w.(*bytes.Buffer).String()
}

// Stdout returns what the command wrote to stdout.
func Stdout(ctx *cmd.Context) string {
	return bufferString(ctx.Stdout)
}

// Stderr returns what the command wrote to stderr.
func Stderr(ctx *cmd.Context) string {
	return bufferString(ctx.Stderr)
}

// InitCommand parses args on com.
func InitCommand(com cmd.Command, args []string) error {
	return cmd.Parse(com, args)
}

// RunCommand parses args on com and runs it in a fresh Context.
func RunCommand(c *gc.C, com cmd.Command, args ...string) (*cmd.Context, error) {
	return RunCommandInDir(c, com, args, c.MkDir())
}

// RunCommandInDir runs com with its Context rooted at dir.
func RunCommandInDir(c *gc.C, com cmd.Command, args []string, dir string) (*cmd.Context, error) {
	if err := InitCommand(com, args); err != nil {
		return nil, err
	}
	ctx := Context(c)
	ctx.Dir = dir
	return ctx, com.Run(ctx)
}
