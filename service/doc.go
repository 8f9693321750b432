// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

// The service package finds, stops and restarts the local query service
// that serves the retrieval index, so its files can be replaced while it
// is not running.
package service
