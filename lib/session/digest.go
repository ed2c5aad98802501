// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// stateDomainKey is the BLAKE3 key for session tree digests: the ASCII
// domain name zero-padded to 32 bytes. Changing it changes every
// logged digest.
var stateDomainKey = [32]byte{
	'w', 'o', 'r', 'k', 'f', 'l', 'o', 'w', '-', 'a', 'g', 'e', 'n', 't', '.', 's',
	'e', 's', 's', 'i', 'o', 'n', '.', 's', 't', 'a', 't', 'e', 0, 0, 0, 0,
}

// TreeDigest returns a keyed BLAKE3 digest over the given files (slash
// paths relative to root, in the order given) and the total byte count.
// Each file contributes its path, length and content, length-prefixed,
// so no two distinct trees share an encoding. Two runs that restore the
// same snapshot log the same digest.
func TreeDigest(root string, files []string) (string, int64, error) {
	hasher, err := blake3.NewKeyed(stateDomainKey[:])
	if err != nil {
		return "", 0, fmt.Errorf("creating state hasher: %w", err)
	}

	var total int64
	var lengthPrefix [8]byte
	for _, name := range files {
		binary.BigEndian.PutUint64(lengthPrefix[:], uint64(len(name)))
		hasher.Write(lengthPrefix[:])
		hasher.Write([]byte(name))

		file, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return "", 0, fmt.Errorf("hashing %s: %w", name, err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return "", 0, fmt.Errorf("hashing %s: %w", name, err)
		}
		binary.BigEndian.PutUint64(lengthPrefix[:], uint64(info.Size()))
		hasher.Write(lengthPrefix[:])
		written, err := io.Copy(hasher, io.LimitReader(file, info.Size()))
		file.Close()
		if err != nil {
			return "", 0, fmt.Errorf("hashing %s: %w", name, err)
		}
		if written != info.Size() {
			return "", 0, fmt.Errorf("hashing %s: file changed while reading", name)
		}
		total += written
	}

	return hex.EncodeToString(hasher.Sum(nil)), total, nil
}
