// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"github.com/juju/errors"

	"github.com/manuals-rag/ragbundle/bundle/stage"
	"github.com/manuals-rag/ragbundle/config"
	"github.com/manuals-rag/ragbundle/internal/sqlitebackup"
	"github.com/manuals-rag/ragbundle/service"
)

// StagerConfig derives the stager configuration from cfg.
func StagerConfig(cfg *config.Config) stage.Config {
	return stage.Config{
		IndexDir:  cfg.IndexDir(),
		RawDir:    cfg.RawDir(),
		IndexFile: cfg.IndexFile(),
		StoreFile: cfg.StoreFile(),
		MetaFile:  cfg.MetaFile(),
		LockWait:  cfg.LockWait(),
		Backup: sqlitebackup.Options{
			ConnectTimeout: cfg.BackupConnectTimeout(),
			Timeout:        cfg.BackupTimeout(),
		},
	}
}

// ServiceConfig derives the service controller configuration from cfg,
// using the process table of this platform.
func ServiceConfig(cfg *config.Config) (service.Config, error) {
	table, err := service.NewProcessTable()
	if err != nil {
		return service.Config{}, errors.Trace(err)
	}
	return service.Config{
		Host:         cfg.ServiceHost(),
		Port:         cfg.ServicePort(),
		Command:      cfg.ServiceCommand(),
		Patterns:     cfg.ServicePatterns(),
		WorkDir:      cfg.BaseDir(),
		LogFile:      cfg.ServiceLog(),
		StopGrace:    cfg.StopGrace(),
		StopTimeout:  cfg.StopTimeout(),
		StartTimeout: cfg.StartTimeout(),
		Table:        table,
	}, nil
}

// NewServiceController returns the controller for the configured service.
func NewServiceController(cfg *config.Config) (*service.Controller, error) {
	scfg, err := ServiceConfig(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ctrl, err := service.NewController(scfg)
	return ctrl, errors.Trace(err)
}
