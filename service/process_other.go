// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !linux

package service

import (
	"github.com/juju/errors"
)

// portableTable can signal processes but cannot enumerate them.
type portableTable struct{}

func newProcessTable() (ProcessTable, error) {
	return portableTable{}, nil
}

func (portableTable) PortInUse(int) (bool, error) {
	return false, errors.NotSupportedf("listing sockets")
}

func (portableTable) ListenersOnPort(int) ([]int, error) {
	return nil, errors.NotSupportedf("listing socket owners")
}

func (portableTable) MatchCommandLine([]string) ([]int, error) {
	return nil, errors.NotSupportedf("listing command lines")
}

func (portableTable) Terminate(pid int, force bool) error {
	return terminate(pid, force)
}
