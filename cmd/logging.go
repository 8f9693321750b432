// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
)

const defaultLogLevel = "<root>=WARNING"

// Log configures loggo from command line flags. Log output always goes to
// the context's stderr.
type Log struct {
	// DefaultConfig is used when --logging-config is not given.
	DefaultConfig string

	Config string
	Debug  bool
}

// AddFlags adds --debug and --logging-config to f. The current values are
// kept as defaults so the flags may be given more than once.
func (l *Log) AddFlags(f *gnuflag.FlagSet) {
	if l.Config == "" {
		l.Config = l.DefaultConfig
	}
	f.BoolVar(&l.Debug, "debug", l.Debug, "Equivalent to --logging-config=<root>=DEBUG")
	f.StringVar(&l.Config, "logging-config", l.Config, "Specify log levels for modules")
}

// Start routes log output to ctx.Stderr and applies the configured levels.
func (l *Log) Start(ctx *Context) error {
	writer := loggo.NewSimpleWriter(ctx.Stderr, loggo.DefaultFormatter)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}
	specs := []string{defaultLogLevel, l.Config}
	if l.Debug {
		specs = append(specs, "<root>=DEBUG")
	}
	for _, spec := range specs {
		if spec == "" {
			continue
		}
		if err := loggo.ConfigureLoggers(spec); err != nil {
			return NewUsageError("logging config %q: %v", spec, err)
		}
	}
	return nil
}
