// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/manuals-rag/ragbundle/bundle"
	"github.com/manuals-rag/ragbundle/bundle/archive"
	"github.com/manuals-rag/ragbundle/cmd"
)

const verifyDoc = `
Verify recomputes the SHA-256 digest of an archive and compares it with
the digest recorded in its side-car. The newest archive in the output
directory is checked when none is named. A mismatch is reported and the
archive is left as it is.
`

type verifyCommand struct {
	baseCommand
	out     cmd.Output
	archive string
}

// verifyResult is printed for a verified archive.
type verifyResult struct {
	Archive string `json:"archive" yaml:"archive"`
	SHA256  string `json:"sha256" yaml:"sha256"`
}

func (c *verifyCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "verify",
		Args:    "[<archive>]",
		Purpose: "Check an archive against its recorded checksum.",
		Doc:     verifyDoc,
	}
}

func (c *verifyCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, tabularFormat, formatters(formatVerifyTabular))
}

func (c *verifyCommand) Init(args []string) (err error) {
	c.archive, err = cmd.ZeroOrOneArgs(args)
	return err
}

func (c *verifyCommand) Run(ctx *cmd.Context) error {
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
	digest, err := archive.Verify(path)
	if err != nil {
		return errors.Annotate(err, "verify failed")
	}
	return c.out.Write(ctx, &verifyResult{Archive: path, SHA256: digest})
}

func formatVerifyTabular(w io.Writer, value interface{}) error {
	result, ok := value.(*verifyResult)
	if !ok {
		return unexpected("*verifyResult", value)
	}
	_, err := fmt.Fprintf(w, "OK  %s  %s\n", result.SHA256, result.Archive)
	return err
}
