// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/service"
)

type statusCommand struct {
	baseCommand
	out cmd.Output
}

// statusResult describes the query service.
type statusResult struct {
	service.Handle `yaml:",inline"`
	Running        bool   `json:"running" yaml:"running"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func (c *statusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "status",
		Purpose: "Show whether the query service is running.",
	}
}

func (c *statusCommand) SetFlags(f *gnuflag.FlagSet) {
	c.out.AddFlags(f, tabularFormat, formatters(formatStatusTabular))
}

func (c *statusCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	ctrl, err := newServiceController(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	handle, err := ctrl.Running()
	if err != nil {
		return errors.Trace(err)
	}
	result := &statusResult{Handle: handle, Running: handle.Running()}
	if result.Running {
		result.Endpoint = ctrl.Endpoint()
	}
	return c.out.Write(ctx, result)
}

func formatStatusTabular(w io.Writer, value interface{}) error {
	result, ok := value.(*statusResult)
	if !ok {
		return unexpected("*statusResult", value)
	}
	if !result.Running {
		_, err := fmt.Fprintf(w, "Service on %s is not running\n", result.Address)
		return err
	}
	pids := make([]string, len(result.PIDs))
	for i, pid := range result.PIDs {
		pids[i] = strconv.Itoa(pid)
	}
	detail := "port bound"
	if len(pids) > 0 {
		detail = "pids " + strings.Join(pids, ", ")
	}
	_, err := fmt.Fprintf(w, "Service on %s is running (%s): %s\n", result.Address, detail, result.Endpoint)
	return err
}
