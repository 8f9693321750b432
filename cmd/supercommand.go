// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("ragbundle.cmd")

// SuperCommandParams provides a way to have default parameter to the
// NewSuperCommand call.
type SuperCommandParams struct {
	Name    string
	Purpose string
	Doc     string
	Version string

	// Log holds the logging flags; logging is left alone when nil.
	Log *Log

	// GlobalFlags adds flags shared by every subcommand. Flag values must
	// be kept when the flags are added a second time.
	GlobalFlags func(f *gnuflag.FlagSet)
}

// SuperCommand is a Command that selects a subcommand and runs it.
type SuperCommand struct {
	CommandBase

	Name    string
	Purpose string
	Doc     string
	Version string

	log         *Log
	globalFlags func(f *gnuflag.FlagSet)
	subcmds     map[string]Command
	action      Command
}

// NewSuperCommand creates and initializes a new SuperCommand.
func NewSuperCommand(p SuperCommandParams) *SuperCommand {
	c := &SuperCommand{
		Name:        p.Name,
		Purpose:     p.Purpose,
		Doc:         p.Doc,
		Version:     p.Version,
		log:         p.Log,
		globalFlags: p.GlobalFlags,
		subcmds:     make(map[string]Command),
	}
	c.Register(&helpCommand{super: c})
	if c.Version != "" {
		c.Register(&versionCommand{version: c.Version})
	}
	return c
}

// Register makes a subcommand available for use on the command line. The
// command will be available via its own name.
func (c *SuperCommand) Register(sub Command) {
	name := sub.Info().Name
	if _, found := c.subcmds[name]; found {
		panic(fmt.Sprintf("command already registered: %q", name))
	}
	c.subcmds[name] = sub
}

// Info returns a description of the currently selected subcommand, or of
// the SuperCommand itself if no subcommand has been specified.
func (c *SuperCommand) Info() *Info {
	var lines []string
	names := make([]string, 0, len(c.subcmds))
	width := 0
	for name := range c.subcmds {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("    %-*s - %s", width, name, c.subcmds[name].Info().Purpose))
	}
	doc := strings.TrimSpace(c.Doc)
	if doc != "" {
		doc += "\n\n"
	}
	return &Info{
		Name:    c.Name,
		Args:    "<command> ...",
		Purpose: c.Purpose,
		Doc:     doc + "Commands:\n" + strings.Join(lines, "\n"),
	}
}

// SetFlags adds the logging and global flags.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	if c.log != nil {
		c.log.AddFlags(f)
	}
	if c.globalFlags != nil {
		c.globalFlags(f)
	}
}

// AllowInterspersedFlags returns false: everything after the command name
// belongs to the subcommand.
func (c *SuperCommand) AllowInterspersedFlags() bool {
	return false
}

// Init selects the subcommand and parses its arguments. The global flags
// are also accepted after the subcommand name.
func (c *SuperCommand) Init(args []string) error {
	if len(args) == 0 {
		return NewUsageError("no command specified")
	}
	sub, found := c.subcmds[args[0]]
	if !found {
		return NewUsageError("unrecognized command: %s %s", c.Name, args[0])
	}
	f := NewFlagSet(sub, io.Discard)
	c.SetFlags(f)
	if err := f.Parse(sub.AllowInterspersedFlags(), args[1:]); err == gnuflag.ErrHelp {
		c.action = &helpCommand{super: c, topic: sub}
		return nil
	} else if err != nil {
		return &UsageError{err: err}
	}
	if err := sub.Init(f.Args()); err != nil {
		if _, ok := err.(*UsageError); ok {
			return err
		}
		return &UsageError{err: err}
	}
	c.action = sub
	return nil
}

// Run starts logging and runs the selected subcommand.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.action == nil {
		return NewUsageError("no command specified")
	}
	if c.log != nil {
		if err := c.log.Start(ctx); err != nil {
			return err
		}
	}
	logger.Debugf("running %s %s [%s %s]", c.Name, c.action.Info().Name, runtime.Compiler, runtime.Version())
	return c.action.Run(ctx)
}

type helpCommand struct {
	CommandBase
	super *SuperCommand
	topic Command
}

func (c *helpCommand) Info() *Info {
	return &Info{
		Name:    "help",
		Args:    "[command]",
		Purpose: "Show help on a command.",
	}
}

func (c *helpCommand) Init(args []string) error {
	name, err := ZeroOrOneArgs(args)
	if err != nil || name == "" {
		return err
	}
	topic, found := c.super.subcmds[name]
	if !found {
		return NewUsageError("unknown command %q", name)
	}
	c.topic = topic
	return nil
}

func (c *helpCommand) Run(ctx *Context) error {
	if c.topic == nil || c.topic == Command(c) {
		PrintUsage(c.super, ctx.Stdout)
		return nil
	}
	PrintUsage(c.topic, ctx.Stdout)
	return nil
}

type versionCommand struct {
	CommandBase
	version string
}

func (c *versionCommand) Info() *Info {
	return &Info{
		Name:    "version",
		Purpose: "Print the ragbundle version.",
	}
}

func (c *versionCommand) Run(ctx *Context) error {
	_, err := fmt.Fprintln(ctx.Stdout, c.version)
	return err
}
