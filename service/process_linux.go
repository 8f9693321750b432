// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"os"
	"strconv"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/prometheus/procfs"
)

// tcpListen is the kernel's TCP_LISTEN socket state.
const tcpListen = 10

type procTable struct {
	fs   procfs.FS
	self int
}

func newProcessTable() (ProcessTable, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, errors.Annotate(err, "opening /proc")
	}
	return &procTable{fs: fs, self: os.Getpid()}, nil
}

// listeningInodes returns the socket inodes listening on port.
func (t *procTable) listeningInodes(port int) (set.Strings, error) {
	inodes := set.NewStrings()
	v4, err := t.fs.NetTCP()
	if err != nil {
		return nil, errors.Annotate(err, "reading tcp sockets")
	}
	for _, line := range v4 {
		if line.St == tcpListen && line.LocalPort == uint64(port) {
			inodes.Add(strconv.FormatUint(line.Inode, 10))
		}
	}
	// IPv6 may be disabled altogether.
	v6, err := t.fs.NetTCP6()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("reading tcp6 sockets: %v", err)
	}
	for _, line := range v6 {
		if line.St == tcpListen && line.LocalPort == uint64(port) {
			inodes.Add(strconv.FormatUint(line.Inode, 10))
		}
	}
	return inodes, nil
}

func (t *procTable) PortInUse(port int) (bool, error) {
	inodes, err := t.listeningInodes(port)
	if err != nil {
		return false, errors.Trace(err)
	}
	return !inodes.IsEmpty(), nil
}

func (t *procTable) ListenersOnPort(port int) ([]int, error) {
	inodes, err := t.listeningInodes(port)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if inodes.IsEmpty() {
		return nil, nil
	}

	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, errors.Annotate(err, "listing processes")
	}
	var pids []int
	for _, p := range procs {
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			// Processes of other users, or ones that just exited.
			continue
		}
		for _, target := range targets {
			inode, ok := socketInode(target)
			if ok && inodes.Contains(inode) {
				pids = append(pids, p.PID)
				break
			}
		}
	}
	if len(pids) == 0 {
		logger.Debugf("port %d is listening but its owner is not visible", port)
	}
	return pids, nil
}

// socketInode extracts the inode from an fd link such as "socket:[1234]".
func socketInode(target string) (string, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return "", false
	}
	return target[len("socket:[") : len(target)-1], true
}

func (t *procTable) MatchCommandLine(patterns []string) ([]int, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, errors.Annotate(err, "listing processes")
	}
	var pids []int
	for _, p := range procs {
		if p.PID == t.self {
			continue
		}
		args, err := p.CmdLine()
		if err != nil || len(args) == 0 {
			continue
		}
		cmdline := strings.Join(args, " ")
		for _, pattern := range patterns {
			if strings.Contains(cmdline, pattern) {
				pids = append(pids, p.PID)
				break
			}
		}
	}
	return pids, nil
}

func (t *procTable) Terminate(pid int, force bool) error {
	return terminate(pid, force)
}
