// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handler for
// workflow-agent binaries.
package process

import (
	"errors"
	"fmt"
	"os"
)

// exitCoder is implemented by errors that carry a specific process exit
// status (a timed-out agent run exits 124, matching timeout(1)).
type exitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The exit status is 1
// unless err wraps an error with an ExitCode method. Use it in main()
// for errors from run(), where the structured logger may not exist.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}

// ExitCode returns the status Fatal would exit with for err.
func ExitCode(err error) int {
	var coder exitCoder
	if errors.As(err, &coder) && coder.ExitCode() > 0 {
		return coder.ExitCode()
	}
	return 1
}
