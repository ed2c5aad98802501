// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// IsExpectedCloseError reports whether err is an ordinary connection
// teardown: EOF, a closed listener or connection, a broken pipe, a
// reset, or the server shutting down. Callers use it to keep routine
// disconnects out of error-level logs.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
