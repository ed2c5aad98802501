// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"bytes"
	"strconv"
	"sync"
)

// DefaultMaxOutputBytes is the capture limit used when none is configured.
const DefaultMaxOutputBytes = 10485760

// CappedBuffer is an io.Writer that keeps at most limit bytes. The first
// write that would exceed the limit stores what still fits, appends a
// truncation marker, and everything after it is discarded. Write never
// fails, so a chatty subprocess is never blocked or killed by the cap.
//
// CappedBuffer is safe for concurrent use; exec.Cmd writes stdout and
// stderr from separate goroutines.
type CappedBuffer struct {
	mu        sync.Mutex
	limit     int
	buffer    bytes.Buffer
	truncated bool
}

// NewCappedBuffer returns a buffer holding at most limit bytes of output.
// A non-positive limit means DefaultMaxOutputBytes.
func NewCappedBuffer(limit int) *CappedBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &CappedBuffer{limit: limit}
}

func (capped *CappedBuffer) Write(data []byte) (int, error) {
	capped.mu.Lock()
	defer capped.mu.Unlock()

	if capped.truncated {
		return len(data), nil
	}
	remaining := capped.limit - capped.buffer.Len()
	if len(data) <= remaining {
		capped.buffer.Write(data)
		return len(data), nil
	}
	capped.buffer.Write(data[:remaining])
	capped.buffer.WriteString(TruncationMarker(capped.limit))
	capped.truncated = true
	return len(data), nil
}

// Bytes returns a copy of the captured output, including the marker if
// the limit was hit.
func (capped *CappedBuffer) Bytes() []byte {
	capped.mu.Lock()
	defer capped.mu.Unlock()
	return bytes.Clone(capped.buffer.Bytes())
}

func (capped *CappedBuffer) String() string {
	capped.mu.Lock()
	defer capped.mu.Unlock()
	return capped.buffer.String()
}

// Truncated reports whether any output was discarded.
func (capped *CappedBuffer) Truncated() bool {
	capped.mu.Lock()
	defer capped.mu.Unlock()
	return capped.truncated
}

// TruncationMarker is the text appended once when output exceeds limit
// bytes. Limits of a mebibyte or more are given in whole mebibytes,
// smaller ones in bytes.
func TruncationMarker(limit int) string {
	if limit < 1<<20 {
		return "\n\n[Output truncated at " + strconv.Itoa(limit) + " bytes limit]\n"
	}
	megabytes := strconv.FormatFloat(float64(limit)/(1<<20), 'f', 0, 64)
	return "\n\n[Output truncated at " + megabytes + "MB limit]\n"
}
