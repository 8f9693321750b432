// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lockprobe reports whether a file is currently held exclusively
// by another process. The probe never keeps a handle open and never writes
// to the file it inspects.
package lockprobe

import (
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("ragbundle.lockprobe")

// State is the lock state of a file at the moment it was probed.
type State int

const (
	// Unknown means the probe hit an unexpected error. The error is
	// returned alongside and must not be read as Free.
	Unknown State = iota

	// Free means nothing else holds the file, or the file does not exist.
	Free

	// Locked means another holder has the file locked.
	Locked
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// ProbeFunc is the signature of Probe, so callers can substitute it.
type ProbeFunc func(path string) (State, error)

// Probe attempts to open path with the most exclusive access available on
// this platform and immediately releases it.
func Probe(path string) (State, error) {
	if path == "" {
		return Unknown, errors.NotValidf("empty path")
	}
	state, err := probe(path)
	if err != nil {
		return Unknown, errors.Trace(err)
	}
	logger.Tracef("probed %q: %s", path, state)
	return state, nil
}
