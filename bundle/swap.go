// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

const asideSuffix = ".previous"

var (
	renameDir    = os.Rename
	exchangeDirs = exchange
)

// rootSwap pairs an unpacked tree with the live root it replaces.
type rootSwap struct {
	staged string
	live   string
}

// swapRoots moves every staged tree into place. The previous live trees
// end up next to the staged paths so they are removed with the
// workspace. If any root fails, the roots already swapped are reverted.
func swapRoots(swaps []rootSwap) error {
	var undos []func() error
	for _, s := range swaps {
		undo, err := swapRoot(s.staged, s.live)
		if err == nil {
			undos = append(undos, undo)
			continue
		}
		for i := len(undos) - 1; i >= 0; i-- {
			if uerr := undos[i](); uerr != nil {
				logger.Errorf("cannot revert swap: %v", uerr)
			}
		}
		return errors.Annotatef(err, "replacing %q", s.live)
	}
	return nil
}

func swapRoot(staged, live string) (func() error, error) {
	if _, err := os.Lstat(live); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
			return nil, errors.Trace(err)
		}
		if err := renameDir(staged, live); err != nil {
			return nil, errors.Trace(err)
		}
		return func() error { return renameDir(live, staged) }, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}

	err := exchangeDirs(staged, live)
	if err == nil {
		logger.Debugf("exchanged %q with %q", staged, live)
		return func() error { return exchangeDirs(staged, live) }, nil
	}
	if !errors.Is(err, errors.NotSupported) {
		return nil, errors.Trace(err)
	}

	aside := staged + asideSuffix
	if err := renameDir(live, aside); err != nil {
		return nil, errors.Trace(err)
	}
	if err := renameDir(staged, live); err != nil {
		if rerr := renameDir(aside, live); rerr != nil {
			logger.Errorf("cannot put %q back: %v", live, rerr)
		}
		return nil, errors.Trace(err)
	}
	return func() error {
		if err := renameDir(live, staged); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(renameDir(aside, live))
	}, nil
}
