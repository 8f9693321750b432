// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/manuals-rag/ragbundle/bundle"
	"github.com/manuals-rag/ragbundle/cmd"
)

const importDoc = `
Import restores an archive over the live index and document trees. The
newest archive in the output directory is used unless --file names one.

The query service is stopped first if it is running. The archive is
checked against its side-car, unpacked next to the live data and
validated; only then are the live trees swapped for the unpacked ones.
The service is started again if it was running, or when --autostart is
given.

Examples:
    ragbundle import
    ragbundle import --file dist/manuals-rag-prod-20250101-120000.zip --autostart
`

type importCommand struct {
	baseCommand
	out       cmd.Output
	file      cmd.FileVar
	autostart bool
}

func (c *importCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "import",
		Purpose: "Restore an archive over the live data.",
		Doc:     importDoc,
	}
}

func (c *importCommand) SetFlags(f *gnuflag.FlagSet) {
	f.Var(&c.file, "file", "Archive to restore (default: newest in the output directory)")
	f.BoolVar(&c.autostart, "autostart", false, "Start the service afterwards even if it was not running")
	c.out.AddFlags(f, tabularFormat, formatters(formatImportTabular))
}

func (c *importCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	ctrl, err := newServiceController(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	importer, err := bundle.NewImporter(bundle.ImporterParams{Config: cfg, Service: ctrl})
	if err != nil {
		return errors.Trace(err)
	}
	result, err := importer.Import(ctx.Context(), bundle.ImportArgs{
		Archive:   c.file.AbsPath(ctx),
		Autostart: c.autostart,
	})
	if err != nil {
		return errors.Annotate(err, "import failed")
	}
	if result.StartError != "" {
		ctx.Warningf("service not restarted: %s (see %s)", result.StartError, cfg.ServiceLog())
	}
	return c.out.Write(ctx, result)
}

func formatImportTabular(w io.Writer, value interface{}) error {
	result, ok := value.(*bundle.ImportResult)
	if !ok {
		return unexpected("*bundle.ImportResult", value)
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Archive\t%s\n", result.Archive)
	fmt.Fprintf(tw, "SHA256\t%s\n", result.SHA256)
	for i, root := range result.Restored {
		label := "Restored"
		if i > 0 {
			label = ""
		}
		fmt.Fprintf(tw, "%s\t%s\n", label, root)
	}
	if m := result.Manifest; m != nil {
		fmt.Fprintf(tw, "Built\t%s by %s\n", m.BuiltAt, m.App)
		fmt.Fprintf(tw, "Models\t%s, %s\n", m.ConsumerModel, m.EmbedModel)
		if m.ChunkCount != nil {
			fmt.Fprintf(tw, "Chunks\t%d\n", *m.ChunkCount)
		}
	}
	switch {
	case result.Endpoint != "":
		fmt.Fprintf(tw, "Service\t%s\n", result.Endpoint)
	case result.WasRunning:
		fmt.Fprintf(tw, "Service\tnot restarted\n")
	default:
		fmt.Fprintf(tw, "Service\tnot running\n")
	}
	return tw.Flush()
}
