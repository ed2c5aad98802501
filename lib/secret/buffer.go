// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials outside the Go heap.
//
// The privileged repository token and the bridge access token live in a
// [Buffer] for the whole run. The memory is an anonymous mmap region,
// locked against swap and excluded from core dumps, and it is zeroed on
// Close. Neither value is ever placed in the agent subprocess's
// environment.
package secret

import (
	"crypto/subtle"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer holds secret bytes in locked, non-dumpable memory. A Buffer
// must not be copied. After Close every accessor panics.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// allocate maps size bytes of anonymous memory and locks it.
func allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock failed: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP) failed: %w", err)
	}
	return data, nil
}

// NewFromBytes copies source into protected memory and zeros source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}
	data, err := allocate(len(source))
	if err != nil {
		return nil, err
	}
	copy(data, source)
	Zero(source)
	return &Buffer{data: data}, nil
}

// NewFromString copies a string into protected memory. The string
// itself cannot be scrubbed; callers use this at process boundaries
// (environment variables, configuration) where the value already
// exists on the heap.
func NewFromString(value string) (*Buffer, error) {
	return NewFromBytes([]byte(value))
}

// Bytes returns the secret. The slice aliases the mapped region and
// must not outlive the Buffer.
func (buffer *Buffer) Bytes() []byte {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	if buffer.closed {
		panic("secret: read from closed buffer")
	}
	return buffer.data
}

// String returns a heap copy of the secret for APIs that need a string
// (HTTP headers, URLs).
func (buffer *Buffer) String() string {
	return string(buffer.Bytes())
}

// Len returns the secret's length in bytes.
func (buffer *Buffer) Len() int {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	return len(buffer.data)
}

// Equal reports whether candidate matches the secret, in constant time
// with respect to the contents.
func (buffer *Buffer) Equal(candidate []byte) bool {
	return subtle.ConstantTimeCompare(buffer.Bytes(), candidate) == 1
}

// Close zeros, unlocks, and unmaps the memory. Close is idempotent.
func (buffer *Buffer) Close() error {
	buffer.mu.Lock()
	defer buffer.mu.Unlock()
	if buffer.closed {
		return nil
	}
	buffer.closed = true

	Zero(buffer.data)
	var firstError error
	if err := unix.Munlock(buffer.data); err != nil {
		firstError = fmt.Errorf("secret: munlock failed: %w", err)
	}
	if err := unix.Munmap(buffer.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap failed: %w", err)
	}
	buffer.data = nil
	return firstError
}

// Zero overwrites data with zeros.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}
