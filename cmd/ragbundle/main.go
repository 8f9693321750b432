// Copyright 2025 The manuals-rag Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/manuals-rag/ragbundle/cmd"
	"github.com/manuals-rag/ragbundle/cmd/ragbundle/commands"
)

func main() {
	os.Exit(Main(os.Args))
}

// Main runs ragbundle with args and returns the exit code. An interrupt
// cancels the running command.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		return 2
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return cmd.Main(commands.NewSuperCommand(), ctx.WithContext(sigCtx), args[1:])
}
