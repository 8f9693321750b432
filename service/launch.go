// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/juju/errors"
)

// Conf describes how to launch the service.
type Conf struct {
	// Cmd is the command and its arguments.
	Cmd []string
	// Dir is the working directory of the command.
	Dir string
	// Out receives the command's stdout and stderr, appended.
	Out string
	// Env holds extra environment variables.
	Env map[string]string
}

// Launcher starts a process that outlives the caller.
type Launcher interface {
	Launch(conf Conf) (pid int, err error)
}

// DetachedLauncher starts processes in their own session, detached from
// the caller's terminal.
type DetachedLauncher struct{}

// Launch implements Launcher.
func (DetachedLauncher) Launch(conf Conf) (int, error) {
	if len(conf.Cmd) == 0 {
		return 0, errors.NotValidf("empty command")
	}

	var out *os.File
	if conf.Out != "" {
		if err := os.MkdirAll(filepath.Dir(conf.Out), 0755); err != nil {
			return 0, errors.Trace(err)
		}
		f, err := os.OpenFile(conf.Out, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return 0, errors.Annotatef(err, "opening service log")
		}
		defer f.Close()
		out = f
	}

	cmd := exec.Command(conf.Cmd[0], conf.Cmd[1:]...)
	cmd.Dir = conf.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = detachedAttr()
	if len(conf.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range conf.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if err := cmd.Start(); err != nil {
		return 0, errors.Annotatef(err, "starting %q", conf.Cmd[0])
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while we are still running.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
