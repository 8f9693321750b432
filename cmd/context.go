// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// Context represents the run context of a Command. Command implementations
// should interpret file names relative to Dir (see AbsPath), and use
// Stdin, Stdout and Stderr instead of the os package equivalents.
type Context struct {
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	ctx context.Context
}

// DefaultContext returns a Context suitable for use in non-hosted
// executables.
func DefaultContext() (*Context, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.Trace(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Context{
		Dir:    abs,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Context returns the context.Context that blocking work should honour.
func (ctx *Context) Context() context.Context {
	if ctx.ctx == nil {
		return context.Background()
	}
	return ctx.ctx
}

// WithContext returns a copy of ctx whose blocking work is bound to c.
func (ctx *Context) WithContext(c context.Context) *Context {
	copied := *ctx
	copied.ctx = c
	return &copied
}

// AbsPath returns an absolute representation of path, with relative paths
// interpreted as relative to ctx.Dir.
func (ctx *Context) AbsPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ctx.Dir, path)
}

// Infof writes a progress message to stderr.
func (ctx *Context) Infof(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, format+"\n", params...)
}

// Warningf writes a warning to stderr.
func (ctx *Context) Warningf(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "WARNING "+format+"\n", params...)
}
