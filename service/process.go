// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

// ProcessTable is the platform's view of running processes.
// Implementations return a NotSupported error for anything the platform
// cannot answer; callers fall back to weaker checks.
type ProcessTable interface {
	// PortInUse reports whether a TCP socket is listening on port.
	PortInUse(port int) (bool, error)

	// ListenersOnPort returns the pids owning a TCP socket listening on
	// port.
	ListenersOnPort(port int) ([]int, error)

	// MatchCommandLine returns the pids whose command line contains any
	// of patterns.
	MatchCommandLine(patterns []string) ([]int, error)

	// Terminate asks pid to exit, or kills it outright when force is
	// set. A process that has already gone is reported as NotFound.
	Terminate(pid int, force bool) error
}

// NewProcessTable returns the ProcessTable for this platform.
func NewProcessTable() (ProcessTable, error) {
	return newProcessTable()
}
