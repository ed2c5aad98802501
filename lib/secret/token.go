// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomToken returns a Buffer holding a hex-encoded random token built
// from byteCount bytes of entropy. The bridge uses one per run as the
// access token embedded in its URL.
func RandomToken(byteCount int) (*Buffer, error) {
	if byteCount <= 0 {
		return nil, fmt.Errorf("secret: token entropy must be positive, got %d", byteCount)
	}
	raw := make([]byte, byteCount)
	defer Zero(raw)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("secret: reading random bytes: %w", err)
	}
	encoded := make([]byte, hex.EncodedLen(byteCount))
	hex.Encode(encoded, raw)
	return NewFromBytes(encoded)
}
