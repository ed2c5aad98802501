// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects the zip method used for archive entries.
type Compression uint8

const (
	// CompressionDeflate is the standard zip method. Every unzip tool
	// reads it, which matters for artifacts users download by hand.
	CompressionDeflate Compression = iota

	// CompressionZstd stores entries with zstd (WinZip method 93).
	// Session transcripts are JSON lines and compress well.
	CompressionZstd
)

// String returns the human-readable name of a compression method.
func (compression Compression) String() string {
	switch compression {
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", compression)
	}
}

// ParseCompression parses a compression method name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "deflate":
		return CompressionDeflate, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression method: %q", name)
	}
}

func (compression Compression) method() uint16 {
	if compression == CompressionZstd {
		return zstd.ZipMethodWinZip
	}
	return zip.Deflate
}

// ArchiveInfo describes a written archive.
type ArchiveInfo struct {
	// Size is the archive length in bytes.
	Size int64

	// SHA256 is the lowercase hex SHA-256 of the archive bytes.
	SHA256 string

	// Files is the number of entries written.
	Files int
}

// WriteArchive writes files (slash-separated, relative to root) into a
// zip archive on writer. Entries keep their permission bits and
// modification time. Only regular files are accepted.
func WriteArchive(writer io.Writer, root string, files []string, compression Compression) (*ArchiveInfo, error) {
	hasher := sha256.New()
	counter := &countingWriter{}
	archive := zip.NewWriter(io.MultiWriter(writer, hasher, counter))
	archive.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for _, name := range files {
		if err := addArchiveEntry(archive, root, name, compression.method()); err != nil {
			archive.Close()
			return nil, err
		}
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}

	return &ArchiveInfo{
		Size:   counter.count,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
		Files:  len(files),
	}, nil
}

func addArchiveEntry(archive *zip.Writer, root, name string, method uint16) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("archive entry %q escapes the root", name)
	}

	file, err := os.Open(filepath.Join(root, filepath.FromSlash(name)))
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("archive entry %q is not a regular file (%s)", name, info.Mode().Type())
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("building header for %s: %w", name, err)
	}
	header.Name = path.Clean(name)
	header.Method = method

	entry, err := archive.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}
	return nil
}

// ExtractArchive extracts a zip archive into destination, which must
// exist. Entries that would land outside destination, and entries that
// are neither regular files nor directories, fail the extraction.
func ExtractArchive(reader io.ReaderAt, size int64, destination string) error {
	archive, err := zip.NewReader(reader, size)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	archive.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	for _, entry := range archive.File {
		if err := extractEntry(entry, destination); err != nil {
			return err
		}
	}
	return nil
}

// ExtractArchiveFile extracts the zip archive at archivePath.
func ExtractArchiveFile(archivePath, destination string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	return ExtractArchive(file, info.Size(), destination)
}

func extractEntry(entry *zip.File, destination string) error {
	name := strings.TrimSuffix(entry.Name, "/")
	if name == "" || strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("archive entry %q escapes the destination", entry.Name)
	}
	target := filepath.Join(destination, filepath.FromSlash(name))

	mode := entry.Mode()
	switch {
	case mode.IsDir():
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		return nil
	case !mode.IsRegular():
		return fmt.Errorf("archive entry %q has unsupported type %s", entry.Name, mode.Type())
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", name, err)
	}

	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	defer source.Close()

	permissions := mode.Perm()
	if permissions == 0 {
		permissions = 0o644
	}
	output, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permissions)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(output, source); err != nil {
		output.Close()
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	if err := output.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if !entry.Modified.IsZero() {
		// Best effort: a timestamp failure does not invalidate content.
		_ = os.Chtimes(target, entry.Modified, entry.Modified)
	}
	return nil
}

// ListFiles returns the slash-separated relative paths of all regular
// files under root, in lexical order. A missing root yields no files.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(current string, entry os.DirEntry, err error) error {
		if err != nil {
			if current == root && errors.Is(err, os.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(root, current)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files under %s: %w", root, err)
	}
	return files, nil
}

type countingWriter struct {
	count int64
}

func (writer *countingWriter) Write(data []byte) (int, error) {
	writer.count += int64(len(data))
	return len(data), nil
}
