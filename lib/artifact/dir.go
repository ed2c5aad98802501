// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sudden-network/workflow-agent/lib/clock"
)

// DirStoreConfig configures a [DirStore].
type DirStoreConfig struct {
	// Root is the directory holding all snapshots. Created on first
	// upload.
	Root string

	// RunID is recorded as the origin of uploads. Defaults to
	// LocalRunID, since local runs have no workflow run.
	RunID string

	Clock  clock.Clock
	Logger *slog.Logger
}

// DirStore keeps snapshots as zstd zip files in a local directory,
// using the same naming as [S3Store]:
//
//	<root>/<name>/<created-unix-nanos>-<expires-unix>-<origin-run>.zip
type DirStore struct {
	root   string
	runID  string
	clock  clock.Clock
	logger *slog.Logger
}

// NewDirStore creates a directory-backed artifact store.
func NewDirStore(config DirStoreConfig) (*DirStore, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("directory artifact store requires a root")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact store root: %w", err)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := config.RunID
	if runID == "" {
		runID = LocalRunID
	}

	return &DirStore{
		root:   root,
		runID:  runID,
		clock:  clk,
		logger: logger,
	}, nil
}

// List returns the snapshots stored under name. A name with no
// directory yet has no snapshots.
func (store *DirStore) List(ctx context.Context, name string) ([]Artifact, error) {
	directory, err := store.nameDir(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", directory, err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		artifact, ok := parseObjectKey(name, entry.Name())
		if !ok {
			continue
		}
		if info, err := entry.Info(); err == nil {
			artifact.Size = info.Size()
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// Download extracts the snapshot file into destination.
func (store *DirStore) Download(ctx context.Context, artifact Artifact, destination string) error {
	archivePath, err := store.archivePath(artifact)
	if err != nil {
		return err
	}
	if _, err := os.Stat(archivePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, archivePath)
		}
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
		return err
	}
	return ExtractArchiveFile(archivePath, destination)
}

// Upload archives files into a new snapshot file. The archive is
// written under a temporary name and renamed into place, so List never
// sees a partial snapshot.
func (store *DirStore) Upload(ctx context.Context, name string, files []string, root string, retention time.Duration) (*Artifact, error) {
	directory, err := store.nameDir(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", directory, err)
	}

	pending, err := os.CreateTemp(directory, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	defer os.Remove(pending.Name())

	info, err := WriteArchive(pending, root, files, CompressionZstd)
	if err != nil {
		pending.Close()
		return nil, fmt.Errorf("archiving artifact %q: %w", name, err)
	}
	if err := pending.Close(); err != nil {
		return nil, fmt.Errorf("closing upload file: %w", err)
	}

	now := store.clock.Now()
	artifact := Artifact{
		ID:          now.UnixNano(),
		Name:        name,
		OriginRunID: store.runID,
		Size:        info.Size,
	}
	if retention > 0 {
		artifact.ExpiresAt = time.Unix(now.Add(retention).Unix(), 0)
	}

	// Two uploads in the same nanosecond (a fake clock, in practice)
	// must not replace each other: bump the creation time until the
	// name is free.
	for {
		artifact.CreatedAt = time.Unix(0, artifact.ID)
		target, err := store.archivePath(artifact)
		if err != nil {
			return nil, err
		}
		if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(pending.Name(), target); err != nil {
				return nil, fmt.Errorf("storing artifact %q: %w", name, err)
			}
			break
		}
		artifact.ID++
	}

	store.logger.Debug("artifact stored",
		"name", name,
		"artifact_id", artifact.ID,
		"bytes", info.Size,
	)
	return &artifact, nil
}

func (store *DirStore) nameDir(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(store.root, name), nil
}

func (store *DirStore) archivePath(artifact Artifact) (string, error) {
	directory, err := store.nameDir(artifact.Name)
	if err != nil {
		return "", err
	}
	var expires int64
	if !artifact.ExpiresAt.IsZero() {
		expires = artifact.ExpiresAt.Unix()
	}
	return filepath.Join(directory, fmt.Sprintf("%d-%d-%s.zip", artifact.CreatedAt.UnixNano(), expires, artifact.OriginRunID)), nil
}
