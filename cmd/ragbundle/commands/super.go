// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package commands holds the ragbundle subcommands.
package commands

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/manuals-rag/ragbundle/bundle"
	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/config"
)

var logger = loggo.GetLogger("ragbundle.cmd.ragbundle")

// Version is reported by "ragbundle version".
const Version = "1.0.0"

// LoggingConfigEnvKey holds the default --logging-config value.
const LoggingConfigEnvKey = "RAGBUNDLE_LOGGING_CONFIG"

const superDoc = `
ragbundle packs the vector index, chunk store and converted documents of
the manuals RAG service into a single checksummed archive, and restores
such an archive in place of the live data, stopping and restarting the
query service around the swap.

Settings come from ragbundle.yaml in the working directory (or --config),
overridden by the environment.
`

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configFile cmd.FileVar
}

// NewSuperCommand returns the ragbundle command with every subcommand
// registered.
func NewSuperCommand() *cmd.SuperCommand {
	opts := &globalOptions{}
	super := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "ragbundle",
		Purpose: "Snapshot and restore the RAG index and documents.",
		Doc:     superDoc,
		Version: Version,
		Log:     &cmd.Log{DefaultConfig: os.Getenv(LoggingConfigEnvKey)},
		GlobalFlags: func(f *gnuflag.FlagSet) {
			f.Var(&opts.configFile, "config", "Settings file (default ./"+config.DefaultFile+")")
		},
	})
	base := baseCommand{opts: opts}
	super.Register(&exportCommand{baseCommand: base})
	super.Register(&importCommand{baseCommand: base})
	super.Register(&verifyCommand{baseCommand: base})
	super.Register(&listCommand{baseCommand: base})
	super.Register(&pushCommand{baseCommand: base})
	super.Register(&pullCommand{baseCommand: base})
	super.Register(&statusCommand{baseCommand: base})
	return super
}

// serviceController is what the commands need of the service.
type serviceController interface {
	bundle.ServiceController
	Address() string
	Endpoint() string
}

var newServiceController = func(cfg *config.Config) (serviceController, error) {
	ctrl, err := bundle.NewServiceController(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ctrl, nil
}

type baseCommand struct {
	cmd.CommandBase
	opts *globalOptions
}

// config loads the settings, looking for the default file in the
// context's directory.
func (c *baseCommand) config(ctx *cmd.Context) (*config.Config, error) {
	file := c.opts.configFile.AbsPath(ctx)
	if file == "" {
		if candidate := ctx.AbsPath(config.DefaultFile); fileExists(candidate) {
			file = candidate
		}
	}
	cfg, err := config.Load(config.LoadArgs{File: file})
	if err != nil {
		return nil, errors.Annotate(err, "loading settings")
	}
	logger.Debugf("data in %s, archives in %s", cfg.DataDir(), cfg.OutputDir())
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
