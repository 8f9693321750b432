// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmd is a small command framework: commands declare their flags
// on a gnuflag.FlagSet, validate positional arguments in Init and do their
// work in Run against a Context carrying the standard streams.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// ErrSilent can be returned from Run to signal failure without an error
// message; the command is expected to have reported it already.
const ErrSilent = errors.ConstError("cmd: error out silently")

// Info holds everything necessary to describe a Command's intent and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string
}

// Usage combines Name and Args to describe the Command's intended usage.
func (i *Info) Usage() string {
	if i.Args == "" {
		return i.Name + " [options]"
	}
	return fmt.Sprintf("%s [options] %s", i.Name, i.Args)
}

// Command is implemented by every ragbundle subcommand.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags adds command specific flags to the flag set.
	SetFlags(f *gnuflag.FlagSet)

	// Init validates the positional arguments left after flag parsing.
	Init(args []string) error

	// AllowInterspersedFlags reports whether flags may follow positional
	// arguments.
	AllowInterspersedFlags() bool

	// Run executes the command.
	Run(ctx *Context) error
}

// CommandBase provides the defaults for optional Command methods.
type CommandBase struct{}

// SetFlags adds no flags.
func (CommandBase) SetFlags(f *gnuflag.FlagSet) {}

// Init accepts no positional arguments.
func (CommandBase) Init(args []string) error {
	return CheckEmpty(args)
}

// AllowInterspersedFlags returns true.
func (CommandBase) AllowInterspersedFlags() bool {
	return true
}

// UsageError reports a command line the command cannot make sense of.
type UsageError struct {
	err error
}

func (e *UsageError) Error() string { return e.err.Error() }

func (e *UsageError) Unwrap() error { return e.err }

// NewUsageError wraps err so that Main exits with status 2.
func NewUsageError(format string, args ...interface{}) error {
	return &UsageError{err: errors.Errorf(format, args...)}
}

// CheckEmpty is a utility function that returns an error if args is not empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return NewUsageError("unrecognized args: %q", args)
	}
	return nil
}

// ZeroOrOneArgs returns the single optional argument.
func ZeroOrOneArgs(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	}
	return "", CheckEmpty(args[1:])
}

// NewFlagSet returns a FlagSet initialized for use with c.
func NewFlagSet(c Command, output io.Writer) *gnuflag.FlagSet {
	f := gnuflag.NewFlagSet(c.Info().Name, gnuflag.ContinueOnError)
	f.SetOutput(output)
	c.SetFlags(f)
	return f
}

// PrintUsage writes the usage, flags and documentation of c to w.
func PrintUsage(c Command, w io.Writer) {
	i := c.Info()
	fmt.Fprintf(w, "Usage: %s\n", i.Usage())
	if i.Purpose != "" {
		fmt.Fprintf(w, "\nSummary:\n%s\n", i.Purpose)
	}
	f := NewFlagSet(c, w)
	var hasFlags bool
	f.VisitAll(func(*gnuflag.Flag) { hasFlags = true })
	if hasFlags {
		fmt.Fprintf(w, "\nOptions:\n")
		f.PrintDefaults()
	}
	if doc := strings.TrimSpace(i.Doc); doc != "" {
		fmt.Fprintf(w, "\nDetails:\n%s\n", doc)
	}
}

// Parse parses args on c, leaving it ready to Run. Any error other than
// gnuflag.ErrHelp is a usage error.
func Parse(c Command, args []string) error {
	f := NewFlagSet(c, io.Discard)
	if err := f.Parse(c.AllowInterspersedFlags(), args); err != nil {
		if err == gnuflag.ErrHelp {
			return err
		}
		return &UsageError{err: err}
	}
	return c.Init(f.Args())
}

// Main parses and runs c, and returns the exit code: 0 on success, 1 when
// the command fails and 2 when the command line cannot be used.
func Main(c Command, ctx *Context, args []string) int {
	if err := Parse(c, args); err != nil {
		if err == gnuflag.ErrHelp {
			PrintUsage(c, ctx.Stdout)
			return 0
		}
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		return 2
	}
	if err := c.Run(ctx); err != nil {
		if !errors.Is(err, ErrSilent) {
			fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		}
		var usage *UsageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}
