// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import "github.com/manuals-rag/ragbundle/config"

type ServiceController = serviceController

type patcher interface {
	PatchValue(dest, value interface{})
}

func PatchServiceController(p patcher, f func(*config.Config) (serviceController, error)) {
	p.PatchValue(&newServiceController, f)
}
