// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"io"
	"os"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/juju/errors"
)

// logTailWindow bounds how much of the end of a log is read.
const logTailWindow = 16 << 10

// LogTail returns at most n of the last lines of the file at path.
func LogTail(path string, n int) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	window := info.Size()
	if window > logTailWindow {
		window = logTailWindow
	}
	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: -window, Whence: io.SeekEnd},
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "reading %q", path)
	}
	var lines []string
	for line := range t.Lines {
		if line.Err != nil {
			continue
		}
		lines = append(lines, strings.TrimRight(line.Text, "\r"))
	}
	if err := t.Wait(); err != nil {
		return nil, errors.Annotatef(err, "reading %q", path)
	}
	// A window that does not reach the start of the file begins mid-line.
	if window < info.Size() && len(lines) > 0 {
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
