// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/kballard/go-shellquote"

	bundleerrors "github.com/manuals-rag/ragbundle/bundle/errors"
)

var logger = loggo.GetLogger("ragbundle.service")

const (
	DefaultStopGrace    = 3 * time.Second
	DefaultStopTimeout  = 10 * time.Second
	DefaultStartTimeout = 30 * time.Second

	pollInterval  = 200 * time.Millisecond
	dialTimeout   = 500 * time.Millisecond
	startLogLines = 10
)

// Config describes the service and how patiently to treat it.
type Config struct {
	Host string
	Port int

	// Command is a shell-like command line; {host} and {port} are
	// substituted before it is split.
	Command string
	// Patterns identify worker processes that may not own the port.
	Patterns []string
	// WorkDir is where the service is started.
	WorkDir string
	// LogFile receives the output of a started service.
	LogFile string

	StopGrace    time.Duration
	StopTimeout  time.Duration
	StartTimeout time.Duration

	Table    ProcessTable
	Launcher Launcher
	Clock    clock.Clock
}

// Validate checks the configuration for missing values.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.NotValidf("empty Host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NotValidf("Port %d", c.Port)
	}
	if c.Table == nil {
		return errors.NotValidf("nil Table")
	}
	return nil
}

// Handle is a snapshot of the running service.
type Handle struct {
	Address string `json:"address" yaml:"address"`
	// PortBound is set when something listens on the service port.
	PortBound bool `json:"port-bound" yaml:"port-bound"`
	// PIDs are the port owners and matching workers, ascending.
	PIDs []int `json:"pids,omitempty" yaml:"pids,omitempty"`
}

// Running reports whether any part of the service was found.
func (h Handle) Running() bool {
	return h.PortBound || len(h.PIDs) > 0
}

// Controller stops and starts the query service.
type Controller struct {
	cfg Config
}

// NewController returns a Controller, filling in defaults.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.Launcher == nil {
		cfg.Launcher = DetachedLauncher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Controller{cfg: cfg}, nil
}

// Address is the host:port of the service.
func (c *Controller) Address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Endpoint is the URL of the service UI.
func (c *Controller) Endpoint() string {
	return fmt.Sprintf("http://%s/ui/", c.Address())
}

// Running finds the processes making up the service.
func (c *Controller) Running() (Handle, error) {
	h := Handle{Address: c.Address()}

	pids := set.NewInts()
	listeners, err := c.cfg.Table.ListenersOnPort(c.cfg.Port)
	switch {
	case errors.Is(err, errors.NotSupported):
		logger.Debugf("cannot find socket owners: %v", err)
	case err != nil:
		return h, errors.Trace(err)
	}
	for _, pid := range listeners {
		pids.Add(pid)
	}

	workers, err := c.cfg.Table.MatchCommandLine(c.cfg.Patterns)
	switch {
	case errors.Is(err, errors.NotSupported):
		logger.Debugf("cannot match command lines: %v", err)
	case err != nil:
		return h, errors.Trace(err)
	}
	for _, pid := range workers {
		pids.Add(pid)
	}
	pids.Remove(os.Getpid())
	h.PIDs = pids.SortedValues()

	bound, err := c.portBound()
	if err != nil {
		return h, errors.Trace(err)
	}
	h.PortBound = bound
	return h, nil
}

func (c *Controller) portBound() (bool, error) {
	bound, err := c.cfg.Table.PortInUse(c.cfg.Port)
	if errors.Is(err, errors.NotSupported) {
		conn, dialErr := net.DialTimeout("tcp", c.Address(), dialTimeout)
		if dialErr != nil {
			return false, nil
		}
		_ = conn.Close()
		return true, nil
	}
	return bound, errors.Trace(err)
}

// waitPort polls until the port binding matches want or d has elapsed,
// checking once more at the deadline.
func (c *Controller) waitPort(ctx context.Context, want bool, d time.Duration) (bool, error) {
	deadline := c.cfg.Clock.Now().Add(d)
	for {
		bound, err := c.portBound()
		if err != nil {
			return false, errors.Trace(err)
		}
		if bound == want {
			return true, nil
		}
		remaining := deadline.Sub(c.cfg.Clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, errors.Trace(ctx.Err())
		case <-c.cfg.Clock.After(wait):
		}
	}
}

func (c *Controller) signal(pids []int, force bool) {
	for _, pid := range pids {
		err := c.cfg.Table.Terminate(pid, force)
		switch {
		case err == nil:
			logger.Debugf("signalled %d (force=%v)", pid, force)
		case errors.Is(err, errors.NotFound):
		default:
			logger.Warningf("signalling %d: %v", pid, err)
		}
	}
}

// Stop asks every process in h to exit and waits until the service port
// is released and none of the processes in h is left. Anything still
// present after the grace period is killed. If the port is still bound,
// or a process in h is still running, when the stop timeout expires,
// measured from the first signal, PortStillOccupied is returned.
func (c *Controller) Stop(ctx context.Context, h Handle) error {
	if !h.Running() {
		return nil
	}
	if len(h.PIDs) == 0 {
		logger.Warningf("%s is bound but its owner cannot be identified", h.Address)
	}

	logger.Infof("stopping service on %s (pids %v)", h.Address, h.PIDs)
	start := c.cfg.Clock.Now()
	c.signal(h.PIDs, false)

	grace := c.cfg.StopGrace
	if grace > c.cfg.StopTimeout {
		grace = c.cfg.StopTimeout
	}
	left, err := c.waitStopped(ctx, h, grace)
	if err != nil {
		return errors.Trace(err)
	}
	if !left.Running() {
		return nil
	}

	survivors := set.NewInts(left.PIDs...)
	if left.PortBound {
		if current, err := c.Running(); err == nil {
			survivors = survivors.Union(set.NewInts(current.PIDs...))
		}
	}
	logger.Infof("service on %s ignored SIGTERM, killing %v", h.Address, survivors.SortedValues())
	c.signal(survivors.SortedValues(), true)

	if remaining := c.cfg.StopTimeout - c.cfg.Clock.Now().Sub(start); remaining > 0 {
		if left, err = c.waitStopped(ctx, h, remaining); err != nil {
			return errors.Trace(err)
		}
		if !left.Running() {
			return nil
		}
	}
	if !left.PortBound {
		return errors.Annotatef(bundleerrors.PortStillOccupied, "%s after %v (pids %v still running)",
			h.Address, c.cfg.StopTimeout, left.PIDs)
	}
	return errors.Annotatef(bundleerrors.PortStillOccupied, "%s after %v", h.Address, c.cfg.StopTimeout)
}

// waitStopped polls until nothing of h is left, checking once more at the
// deadline. It returns what is left: the port binding and the pids of h
// that are still found.
func (c *Controller) waitStopped(ctx context.Context, h Handle, d time.Duration) (Handle, error) {
	deadline := c.cfg.Clock.Now().Add(d)
	for {
		current, err := c.Running()
		if err != nil {
			return h, errors.Trace(err)
		}
		left := Handle{
			Address:   h.Address,
			PortBound: current.PortBound,
			PIDs:      set.NewInts(h.PIDs...).Intersection(set.NewInts(current.PIDs...)).SortedValues(),
		}
		if !left.Running() {
			return left, nil
		}
		remaining := deadline.Sub(c.cfg.Clock.Now())
		if remaining <= 0 {
			return left, nil
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return left, errors.Trace(ctx.Err())
		case <-c.cfg.Clock.After(wait):
		}
	}
}

// CommandArgs returns the service command line after substitution.
func (c *Controller) CommandArgs() ([]string, error) {
	line := strings.NewReplacer(
		"{host}", c.cfg.Host,
		"{port}", strconv.Itoa(c.cfg.Port),
	).Replace(c.cfg.Command)
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.NotValidf("service command %q: %v", c.cfg.Command, err)
	}
	if len(args) == 0 {
		return nil, errors.NotValidf("empty service command")
	}
	if args[0] == "python" {
		args[0] = c.python()
	}
	return args, nil
}

// python prefers the project's virtualenv interpreter when there is one.
func (c *Controller) python() string {
	if c.cfg.WorkDir == "" {
		return "python"
	}
	for _, candidate := range []string{
		filepath.Join(c.cfg.WorkDir, ".venv", "bin", "python"),
		filepath.Join(c.cfg.WorkDir, ".venv", "Scripts", "python.exe"),
	} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return "python"
}

// Start launches the service detached and waits for it to bind its port.
// The endpoint is returned even when the wait times out, since the
// service may still come up.
func (c *Controller) Start(ctx context.Context) (string, error) {
	args, err := c.CommandArgs()
	if err != nil {
		return "", errors.Trace(err)
	}
	pid, err := c.cfg.Launcher.Launch(Conf{
		Cmd: args,
		Dir: c.cfg.WorkDir,
		Out: c.cfg.LogFile,
	})
	if err != nil {
		return "", errors.Annotate(err, "launching service")
	}
	logger.Infof("started service as pid %d: %s", pid, shellquote.Join(args...))

	up, err := c.waitPort(ctx, true, c.cfg.StartTimeout)
	if err != nil {
		return c.Endpoint(), errors.Trace(err)
	}
	if !up {
		return c.Endpoint(), errors.Timeoutf("service to listen on %s within %v%s",
			c.Address(), c.cfg.StartTimeout, c.lastOutput())
	}
	return c.Endpoint(), nil
}

// lastOutput renders the end of the service log for a start failure.
func (c *Controller) lastOutput() string {
	if c.cfg.LogFile == "" {
		return ""
	}
	lines, err := LogTail(c.cfg.LogFile, startLogLines)
	if err != nil {
		logger.Debugf("no service output: %v", err)
		return ""
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("; last output from %s:\n  %s", c.cfg.LogFile, strings.Join(lines, "\n  "))
}
