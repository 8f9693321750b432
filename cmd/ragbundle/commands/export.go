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

const exportDoc = `
Export copies the vector index, the chunk store and the converted documents
into a staging area and packs them, with a bundle.json manifest, into
<app-prefix>-<label>-<YYYYMMDD-HHmmss>.zip in the output directory. A
<archive>.sha256 side-car records the archive digest.

If the chunk store is locked by a writer, export waits briefly for the
lock to clear and otherwise takes a consistent copy through the SQLite
online backup API.

Examples:
    ragbundle export
    ragbundle export --label prod
`

type exportCommand struct {
	baseCommand
	out   cmd.Output
	label string
}

func (c *exportCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "export",
		Purpose: "Snapshot the index and documents into an archive.",
		Doc:     exportDoc,
	}
}

func (c *exportCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.label, "label", "", "Label included in the archive name")
	c.out.AddFlags(f, tabularFormat, formatters(formatExportTabular))
}

func (c *exportCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	exporter, err := bundle.NewExporter(bundle.ExporterParams{Config: cfg})
	if err != nil {
		return errors.Trace(err)
	}
	result, err := exporter.Export(ctx.Context(), bundle.ExportArgs{Label: c.label})
	if err != nil {
		return errors.Annotate(err, "export failed")
	}
	return c.out.Write(ctx, result)
}

func formatExportTabular(w io.Writer, value interface{}) error {
	result, ok := value.(*bundle.ExportResult)
	if !ok {
		return unexpected("*bundle.ExportResult", value)
	}
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Archive\t%s\n", result.Archive)
	fmt.Fprintf(tw, "SHA256\t%s\n", result.SHA256)
	fmt.Fprintf(tw, "Size\t%s\n", humanSize(result.Size))
	fmt.Fprintf(tw, "Chunk store\t%s\n", result.StoreMethod)
	fmt.Fprintf(tw, "Documents\t%d\n", result.RawFiles)
	return tw.Flush()
}
