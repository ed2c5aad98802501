// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package session gives a stateless workflow run the agent's memory of
// earlier runs on the same issue or pull request.
//
// The agent keeps its conversation history in a local state directory.
// Before the agent starts, [Manager.Restore] finds the newest live
// snapshot of that directory for the session [Key] in an
// [artifact.Store] and installs it. After a successful run,
// [Manager.Persist] strips credentials and scratch files from the
// directory and uploads it as a new snapshot. Older snapshots are left
// for the store's retention policy to expire.
//
// Snapshot layout: the archive holds the state directory's contents
// either at its root or nested under a top-level "sessions" directory
// (older uploads archived the parent). [payloadRoot] is the only place
// that decides between the two.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sudden-network/workflow-agent/lib/artifact"
	"github.com/sudden-network/workflow-agent/lib/clock"
)

// DefaultRetention is how long the store keeps each snapshot.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultStripPaths are removed from the state directory before every
// upload, relative to it. auth.json holds the agent's API credential.
var DefaultStripPaths = []string{"auth.json", "tmp"}

// nestedPayloadDir is the directory name that marks a nested snapshot.
const nestedPayloadDir = "sessions"

// Config configures a [Manager].
type Config struct {
	// Store holds the snapshots. Required.
	Store artifact.Store

	// StateDir is the agent's local state directory. Required.
	StateDir string

	// ArtifactPrefix prefixes artifact names. Defaults to
	// DefaultArtifactPrefix.
	ArtifactPrefix string

	// Retention is passed to every upload. Defaults to
	// DefaultRetention.
	Retention time.Duration

	// StripPaths are removed before upload. Nil means
	// DefaultStripPaths; an empty non-nil slice strips nothing.
	StripPaths []string

	// TempDir holds scratch and staging directories during restore.
	// Defaults to os.TempDir().
	TempDir string

	// Clock decides which snapshots have expired. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Manager restores and persists agent session state. It assumes
// exclusive ownership of the state directory between Restore and
// Persist.
type Manager struct {
	store      artifact.Store
	stateDir   string
	prefix     string
	retention  time.Duration
	stripPaths []string
	tempDir    string
	clock      clock.Clock
	logger     *slog.Logger
}

// NewManager validates the configuration and returns a Manager.
func NewManager(config Config) (*Manager, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("session manager requires an artifact store")
	}
	if config.StateDir == "" {
		return nil, fmt.Errorf("session manager requires a state directory")
	}
	stateDir, err := filepath.Abs(config.StateDir)
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}

	stripPaths := config.StripPaths
	if stripPaths == nil {
		stripPaths = DefaultStripPaths
	}
	for _, strip := range stripPaths {
		if !filepath.IsLocal(strip) {
			return nil, fmt.Errorf("strip path %q is not inside the state directory", strip)
		}
	}

	retention := config.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	prefix := config.ArtifactPrefix
	if prefix == "" {
		prefix = DefaultArtifactPrefix
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:      config.Store,
		stateDir:   stateDir,
		prefix:     prefix,
		retention:  retention,
		stripPaths: stripPaths,
		tempDir:    config.TempDir,
		clock:      clk,
		logger:     logger,
	}, nil
}

// StateDir returns the absolute state directory.
func (manager *Manager) StateDir() string {
	return manager.stateDir
}

// Restore installs the newest live snapshot for key into the state
// directory and reports whether it did.
//
// No live snapshot returns (false, nil) without touching the state
// directory. A snapshot that fails to download or install is logged and
// also returns (false, nil): a broken history degrades the run to a
// fresh start instead of blocking it. A store that cannot be listed,
// or a newest snapshot with no origin run, is returned as an error.
func (manager *Manager) Restore(ctx context.Context, key Key) (bool, error) {
	name := key.ArtifactName(manager.prefix)

	artifacts, err := manager.store.List(ctx, name)
	if err != nil {
		if errors.Is(err, artifact.ErrForbidden) {
			return false, fmt.Errorf("listing session artifacts %s: the credential cannot read the artifact store (GitHub needs the actions: read permission): %w", name, err)
		}
		return false, fmt.Errorf("listing session artifacts %s: %w", name, err)
	}

	selected, ok := SelectLatest(artifacts, manager.clock.Now())
	if !ok {
		manager.logger.Info("no previous session found",
			"session", key.String(),
			"artifact", name,
			"candidates", len(artifacts),
		)
		return false, nil
	}
	if selected.OriginRunID == "" {
		return false, &MissingOriginError{Name: name, ArtifactID: selected.ID}
	}

	digest, err := manager.restoreArtifact(ctx, selected)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		manager.logger.Warn("session restore failed, starting fresh",
			"session", key.String(),
			"error", err,
		)
		return false, nil
	}

	manager.logger.Info("restored previous session",
		"session", key.String(),
		"artifact_id", selected.ID,
		"origin_run", selected.OriginRunID,
		"created_at", selected.CreatedAt,
		"digest", digest,
	)
	return true, nil
}

// SelectLatest returns the live artifact with the greatest CreatedAt,
// breaking ties by the greater ID. Artifacts the store marked expired,
// or whose expiry is at or before now, are never selected.
func SelectLatest(artifacts []artifact.Artifact, now time.Time) (artifact.Artifact, bool) {
	var selected artifact.Artifact
	found := false
	for _, candidate := range artifacts {
		if candidate.IsExpired(now) {
			continue
		}
		if !found ||
			candidate.CreatedAt.After(selected.CreatedAt) ||
			(candidate.CreatedAt.Equal(selected.CreatedAt) && candidate.ID > selected.ID) {
			selected = candidate
			found = true
		}
	}
	return selected, found
}

// restoreArtifact downloads into a scratch directory and installs the
// payload. Failures are *RestoreError.
func (manager *Manager) restoreArtifact(ctx context.Context, selected artifact.Artifact) (string, error) {
	scratch, err := os.MkdirTemp(manager.tempDir, "workflow-agent-restore-*")
	if err != nil {
		return "", &RestoreError{Name: selected.Name, ArtifactID: selected.ID, Stage: "download", Err: err}
	}
	defer os.RemoveAll(scratch)

	if err := manager.store.Download(ctx, selected, scratch); err != nil {
		return "", &RestoreError{Name: selected.Name, ArtifactID: selected.ID, Stage: "download", Err: err}
	}

	digest, err := manager.install(payloadRoot(scratch))
	if err != nil {
		return "", &RestoreError{Name: selected.Name, ArtifactID: selected.ID, Stage: "install", Err: err}
	}
	return digest, nil
}

// payloadRoot applies the snapshot layout rule: a top-level "sessions"
// directory in the extracted archive is the payload; otherwise the
// whole extraction is.
func payloadRoot(scratch string) string {
	nested := filepath.Join(scratch, nestedPayloadDir)
	if info, err := os.Lstat(nested); err == nil && info.IsDir() {
		return nested
	}
	return scratch
}

// install replaces the state directory with a copy of payload. The
// copy is built in a sibling staging directory first, so a failed copy
// leaves the existing state directory untouched.
func (manager *Manager) install(payload string) (string, error) {
	parent := filepath.Dir(manager.stateDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", parent, err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(manager.stateDir)+"-staging-*")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := copyTree(payload, staging); err != nil {
		return "", err
	}

	files, err := artifact.ListFiles(staging)
	if err != nil {
		return "", err
	}
	digest, _, err := TreeDigest(staging, files)
	if err != nil {
		return "", err
	}

	if err := os.RemoveAll(manager.stateDir); err != nil {
		return "", fmt.Errorf("removing previous state: %w", err)
	}
	if err := os.Rename(staging, manager.stateDir); err != nil {
		return "", fmt.Errorf("installing restored state: %w", err)
	}
	committed = true
	return digest, nil
}

// copyTree copies regular files and directories from source into the
// existing directory destination. Symlinks and other special files
// are skipped: a snapshot is plain data.
func copyTree(source, destination string) error {
	return filepath.WalkDir(source, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, current)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		target := filepath.Join(destination, relative)

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, 0o755)
		case entry.Type().IsRegular():
			return copyFile(current, target)
		default:
			return nil
		}
	})
}

func copyFile(source, destination string) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	info, err := input.Stat()
	if err != nil {
		return err
	}
	output, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return fmt.Errorf("copying %s: %w", source, err)
	}
	return output.Close()
}

// Persist strips secret and scratch paths from the state directory and
// uploads what remains as a new snapshot for key.
//
// A strip failure aborts before anything is uploaded. An empty
// directory returns *NoStateError without contacting the store, so the
// previous snapshot stays the newest.
func (manager *Manager) Persist(ctx context.Context, key Key) (*artifact.Artifact, error) {
	for _, strip := range manager.stripPaths {
		target := filepath.Join(manager.stateDir, strip)
		if err := os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("stripping %s from session state: %w", strip, err)
		}
	}

	files, err := artifact.ListFiles(manager.stateDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &NoStateError{StateDir: manager.stateDir}
	}

	digest, size, err := TreeDigest(manager.stateDir, files)
	if err != nil {
		return nil, err
	}

	name := key.ArtifactName(manager.prefix)
	uploaded, err := manager.store.Upload(ctx, name, files, manager.stateDir, manager.retention)
	if err != nil {
		return nil, fmt.Errorf("uploading session %s: %w", name, err)
	}

	manager.logger.Info("persisted session",
		"session", key.String(),
		"artifact_id", uploaded.ID,
		"files", len(files),
		"bytes", size,
		"digest", digest,
		"expires_at", uploaded.ExpiresAt,
	)
	return uploaded, nil
}
