// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/dotandev/watpatch/internal/errors"
)

// InterruptExitCode is the conventional status for a run stopped by SIGINT.
const InterruptExitCode = 130

// IsCancellation reports whether err came from the command context being
// cancelled, which is how an interrupt surfaces through the patch passes.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsCancellation(err):
		return InterruptExitCode
	default:
		return 1
	}
}
