// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package errors

import "github.com/juju/errors"

const (
	// MissingPrerequisite is raised when a required index or chunk store
	// file is absent before an export begins.
	MissingPrerequisite = errors.ConstError("missing prerequisite artifact")

	// LockTimeout is raised when the chunk store stays locked past the
	// wait bound and the online backup fallback also failed.
	LockTimeout = errors.ConstError("chunk store lock timeout")

	// ArchiveValidationFailure is raised when an extracted archive lacks a
	// mandatory member or the member is unusable.
	ArchiveValidationFailure = errors.ConstError("archive validation failure")

	// PortStillOccupied is raised when the query service does not release
	// its port within the stop deadline.
	PortStillOccupied = errors.ConstError("service port still occupied")

	// ChecksumMismatch is raised when the recomputed archive digest differs
	// from the recorded side-car.
	ChecksumMismatch = errors.ConstError("checksum mismatch")

	// NoArchiveFound is raised when no archive was given and none exists in
	// the output directory.
	NoArchiveFound = errors.ConstError("no archive found")
)
