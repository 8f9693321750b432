// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	"github.com/manuals-rag/ragbundle/cmd"
)

type listCommand struct {
	baseCommand
	out cmd.Output
}

func (c *listCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "list",
		Purpose: "List the archives in the output directory.",
		Doc:     "Archives are listed newest first with their checksum state.",
	}
}

func (c *listCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, tabularFormat, formatters(formatListTabular))
}

func (c *listCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	found, err := archive.List(cfg.OutputDir())
	if err != nil {
		return errors.Trace(err)
	}
	if len(found) == 0 && c.out.Name() == tabularFormat {
		ctx.Infof("No archives in %s", cfg.OutputDir())
		return nil
	}
	if found == nil {
		found = []archive.Info{}
	}
	return c.out.Write(ctx, found)
}

func formatListTabular(w io.Writer, value interface{}) error {
	found, ok := value.([]archive.Info)
	if !ok {
		return unexpected("[]archive.Info", value)
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Name\tSize\tModified\tChecksum\n")
	for _, info := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\t", info.Name, humanize.Bytes(uint64(info.Size)), info.ModTime.Format("2006-01-02 15:04:05"))
		printChecksumState(tw, info.Checksum)
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
