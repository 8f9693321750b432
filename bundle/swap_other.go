// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

//go:build !linux

package bundle

import "github.com/juju/errors"

func exchange(a, b string) error {
	return errors.NotSupportedf("exchanging %q and %q", a, b)
}
