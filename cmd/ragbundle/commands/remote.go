// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/manuals-rag/ragbundle/bundle"
	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/config"
	"github.com/manuals-rag/ragbundle/internal/objectstore"
)

func openStore(ctx context.Context, cfg *config.Config) (*objectstore.Store, error) {
	if cfg.RemoteBucket() == "" {
		return nil, errors.NotValidf("empty %s setting", config.RemoteBucketKey)
	}
	store, err := objectstore.New(ctx, objectstore.Config{
		Bucket:   cfg.RemoteBucket(),
		Prefix:   cfg.RemotePrefix(),
		Region:   cfg.RemoteRegion(),
		Endpoint: cfg.RemoteEndpoint(),
	})
	return store, errors.Trace(err)
}

// transferResult is printed after a push or pull.
type transferResult struct {
	Archive string `json:"archive" yaml:"archive"`
	Remote  string `json:"remote" yaml:"remote"`
	Size    int64  `json:"size,omitempty" yaml:"size,omitempty"`
}

func formatTransferTabular(w io.Writer, value interface{}) error {
	result, ok := value.(*transferResult)
	if !ok {
		return unexpected("*transferResult", value)
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Archive\t%s\n", result.Archive)
	fmt.Fprintf(tw, "Remote\t%s\n", result.Remote)
	if result.Size > 0 {
		fmt.Fprintf(tw, "Size\t%s\n", humanSize(result.Size))
	}
	return tw.Flush()
}

const pushDoc = `
Push uploads an archive and its checksum side-car to the configured bucket
under remote-prefix. The newest archive in the output directory is pushed
when none is named. The archive must match its side-car; one is recorded
first when it is missing.
`

type pushCommand struct {
	baseCommand
	out     cmd.Output
	archive string
}

func (c *pushCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "push",
		Args:    "[<archive>]",
		Purpose: "Upload an archive to the remote store.",
		Doc:     pushDoc,
	}
}

func (c *pushCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, tabularFormat, formatters(formatTransferTabular))
}

func (c *pushCommand) Init(args []string) (err error) {
	c.archive, err = cmd.ZeroOrOneArgs(args)
	return err
}

func (c *pushCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	explicit := ""
	if c.archive != "" {
		explicit = ctx.AbsPath(c.archive)
	}
	path, err := bundle.ResolveArchive(cfg.OutputDir(), explicit)
	if err != nil {
		return errors.Trace(err)
	}
	store, err := openStore(ctx.Context(), cfg)
	if err != nil {
		return errors.Trace(err)
	}
	obj, err := store.Push(ctx.Context(), path)
	if err != nil {
		return errors.Annotate(err, "push failed")
	}
	return c.out.Write(ctx, &transferResult{
		Archive: path,
		Remote:  fmt.Sprintf("s3://%s/%s%s", cfg.RemoteBucket(), cfg.RemotePrefix(), obj.Name),
		Size:    obj.Size,
	})
}

const pullDoc = `
Pull downloads an archive and its checksum side-car from the configured
bucket into the output directory and verifies it. The newest remote
archive is pulled when none is named. Use import to restore it.
`

type pullCommand struct {
	baseCommand
	out  cmd.Output
	name string
}

func (c *pullCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "pull",
		Args:    "[<name>]",
		Purpose: "Download an archive from the remote store.",
		Doc:     pullDoc,
	}
}

func (c *pullCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, tabularFormat, formatters(formatTransferTabular))
}

func (c *pullCommand) Init(args []string) (err error) {
	c.name, err = cmd.ZeroOrOneArgs(args)
	return err
}

func (c *pullCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	store, err := openStore(ctx.Context(), cfg)
	if err != nil {
		return errors.Trace(err)
	}
	path, err := store.Pull(ctx.Context(), c.name, cfg.OutputDir())
	if err != nil {
		return errors.Annotate(err, "pull failed")
	}
	return c.out.Write(ctx, &transferResult{
		Archive: path,
		Remote:  fmt.Sprintf("s3://%s/%s", cfg.RemoteBucket(), cfg.RemotePrefix()),
	})
}
