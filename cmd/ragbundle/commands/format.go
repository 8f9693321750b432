// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/juju/ansiterm"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"

	"github.com/manuals-rag/ragbundle/bundle/archive"
	"github.com/manuals-rag/ragbundle/cmd"
)

const tabularFormat = "tabular"

// formatters returns the default formatters plus tabular.
func formatters(tabular cmd.Formatter) map[string]cmd.Formatter {
	result := map[string]cmd.Formatter{tabularFormat: tabular}
	for name, f := range cmd.DefaultFormatters {
		result[name] = f
	}
	return result
}

func newTabWriter(w io.Writer) *ansiterm.TabWriter {
	tw := ansiterm.NewTabWriter(w, 0, 1, 2, ' ', 0)
	tw.SetColorCapable(colorEnabled(w))
	return tw
}

// colorEnabled reports whether tabular output to w is coloured. NO_COLOR
// always wins; CLICOLOR_FORCE colours pipes and files too.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func unexpected(want string, value interface{}) error {
	return errors.Errorf("expected %s, got %T", want, value)
}

// humanSize renders a byte count the way du -h would, plus the exact value.
func humanSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return fmt.Sprintf("%s (%d bytes)", humanize.Bytes(uint64(size)), size)
}

var checksumColor = map[archive.ChecksumState]*ansiterm.Context{
	archive.ChecksumOK:       ansiterm.Foreground(ansiterm.Green),
	archive.ChecksumMismatch: ansiterm.Foreground(ansiterm.BrightRed),
	archive.ChecksumMissing:  ansiterm.Foreground(ansiterm.Yellow),
	archive.ChecksumError:    ansiterm.Foreground(ansiterm.Red),
}

func printChecksumState(w *ansiterm.TabWriter, state archive.ChecksumState) {
	if color, ok := checksumColor[state]; ok {
		color.Fprintf(w, "%s", state)
		return
	}
	fmt.Fprint(w, state)
}
