// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/sudden-network/workflow-agent/lib/testutil"
)

func TestArchiveRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionDeflate, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			source := t.TempDir()
			want := map[string]string{
				"2026/10/17/rollout-1.jsonl": strings.Repeat(`{"type":"message"}`+"\n", 200),
				"history.jsonl":              "one\n",
				"empty":                      "",
			}
			testutil.WriteTree(t, source, want)

			files, err := ListFiles(source)
			if err != nil {
				t.Fatalf("ListFiles: %v", err)
			}

			var buffer bytes.Buffer
			info, err := WriteArchive(&buffer, source, files, compression)
			if err != nil {
				t.Fatalf("WriteArchive: %v", err)
			}
			if info.Size != int64(buffer.Len()) {
				t.Errorf("Size = %d, want %d", info.Size, buffer.Len())
			}
			digest := sha256.Sum256(buffer.Bytes())
			if info.SHA256 != hex.EncodeToString(digest[:]) {
				t.Errorf("SHA256 = %s, want %x", info.SHA256, digest)
			}
			if info.Files != 3 {
				t.Errorf("Files = %d, want 3", info.Files)
			}

			destination := t.TempDir()
			if err := ExtractArchive(bytes.NewReader(buffer.Bytes()), int64(buffer.Len()), destination); err != nil {
				t.Fatalf("ExtractArchive: %v", err)
			}
			if got := testutil.ReadTree(t, destination); !reflect.DeepEqual(got, want) {
				t.Errorf("extracted tree = %v, want %v", got, want)
			}
		})
	}
}

func TestArchiveUsesRequestedMethod(t *testing.T) {
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"a.txt": "alpha"})

	var buffer bytes.Buffer
	if _, err := WriteArchive(&buffer, source, []string{"a.txt"}, CompressionZstd); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(buffer.Bytes()), int64(buffer.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(reader.File) != 1 {
		t.Fatalf("entries = %d, want 1", len(reader.File))
	}
	if reader.File[0].Method != 93 {
		t.Errorf("method = %d, want 93 (zstd)", reader.File[0].Method)
	}
}

func TestWriteArchiveRejectsEscapingPath(t *testing.T) {
	var buffer bytes.Buffer
	_, err := WriteArchive(&buffer, t.TempDir(), []string{"../outside"}, CompressionDeflate)
	if err == nil {
		t.Fatal("WriteArchive accepted a path outside the root")
	}
}

func TestExtractArchiveRejectsZipSlip(t *testing.T) {
	for _, name := range []string{"../evil.txt", "/etc/evil", "a/../../evil", `..\evil`} {
		t.Run(name, func(t *testing.T) {
			var buffer bytes.Buffer
			writer := zip.NewWriter(&buffer)
			entry, err := writer.Create(name)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			entry.Write([]byte("pwned"))
			if err := writer.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			parent := t.TempDir()
			destination := filepath.Join(parent, "dest")
			if err := os.Mkdir(destination, 0o755); err != nil {
				t.Fatalf("Mkdir: %v", err)
			}

			err = ExtractArchive(bytes.NewReader(buffer.Bytes()), int64(buffer.Len()), destination)
			if err == nil {
				t.Fatal("ExtractArchive accepted an escaping entry")
			}
			if _, statErr := os.Stat(filepath.Join(parent, "evil.txt")); statErr == nil {
				t.Error("escaping entry was written outside the destination")
			}
		})
	}
}

func TestListFilesMissingRoot(t *testing.T) {
	files, err := ListFiles(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}

func TestListFilesSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"real.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	files, err := ListFiles(root)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"real.txt"}) {
		t.Errorf("files = %v, want [real.txt]", files)
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		name    string
		want    Compression
		wantErr bool
	}{
		{"", CompressionDeflate, false},
		{"deflate", CompressionDeflate, false},
		{"zstd", CompressionZstd, false},
		{"lz4", 0, true},
	}
	for _, test := range tests {
		got, err := ParseCompression(test.name)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseCompression(%q) error = %v, wantErr %v", test.name, err, test.wantErr)
			continue
		}
		if got != test.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}
