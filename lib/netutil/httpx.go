// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds HTTP and socket helpers shared by the GitHub
// client, the artifact stores, and the protocol bridge.
//
// Every JSON body read in workflow-agent is bounded. Archive downloads
// are streamed to disk with io.Copy and do not go through these
// helpers.
package netutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response reads (64 MiB).
const MaxResponseSize int64 = 64 << 20

// ErrBodyTooLarge is returned by ReadLimited when the body exceeds the
// limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadResponse reads a JSON API response body up to MaxResponseSize.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ReadLimited reads at most limit bytes from body. Unlike ReadResponse
// it reports an over-long body as ErrBodyTooLarge instead of silently
// truncating, so a caller can reject the request outright.
func ReadLimited(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

// DecodeResponse reads a bounded JSON body and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns a bounded response body as a string for error
// messages. Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}
