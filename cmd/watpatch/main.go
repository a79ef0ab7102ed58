// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/dotandev/watpatch/internal/cmd"
)

// Version is injected via -ldflags at release time.
var Version = "dev"

func main() {
	cmd.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		if cmd.IsCancellation(err) {
			color.New(color.FgYellow).Fprintln(os.Stderr, "Interrupted.")
		} else {
			color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
			color.New(color.FgRed).Fprintln(os.Stderr, err)
		}
	}
	os.Exit(cmd.ExitCode(err))
}
