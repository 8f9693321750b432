// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bundle exports the live RAG index and document tree into a
// self-describing archive and restores such an archive in place of the
// live data.
//
// An export stages a consistent copy of the index members and the raw
// document tree, adds a manifest and packs the result into a zip with a
// checksum side-car. An import stops the service, unpacks and validates
// the archive next to the live roots, swaps the roots over and restarts
// the service.
package bundle

import "github.com/juju/loggo/v2"

var logger = loggo.GetLogger("ragbundle.bundle")
