// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/sudden-network/workflow-agent/lib/clock"
	"github.com/sudden-network/workflow-agent/lib/github"
)

// GitHubStoreConfig configures a [GitHubStore].
type GitHubStoreConfig struct {
	// Client lists and downloads artifacts through the REST API. Its
	// token needs actions: read on the repository.
	Client *github.Client

	// Owner and Repo name the repository that owns the artifacts.
	Owner string
	Repo  string

	// Results uploads new artifacts. Nil makes Upload fail, which is
	// the right outcome outside a workflow job.
	Results *ResultsClient

	// RunID is GITHUB_RUN_ID, recorded as the origin of uploads.
	RunID string

	// TempDir holds archives in transit. Defaults to os.TempDir().
	TempDir string

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// GitHubStore keeps snapshots as GitHub Actions artifacts.
type GitHubStore struct {
	client  *github.Client
	owner   string
	repo    string
	results *ResultsClient
	runID   string
	tempDir string
	clock   clock.Clock
	logger  *slog.Logger
}

// NewGitHubStore creates a GitHub Actions artifact store.
func NewGitHubStore(config GitHubStoreConfig) (*GitHubStore, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("github artifact store requires a client")
	}
	if config.Owner == "" || config.Repo == "" {
		return nil, fmt.Errorf("github artifact store requires owner and repo")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GitHubStore{
		client:  config.Client,
		owner:   config.Owner,
		repo:    config.Repo,
		results: config.Results,
		runID:   config.RunID,
		tempDir: config.TempDir,
		clock:   clk,
		logger:  logger,
	}, nil
}

// List returns the repository's artifacts named name.
func (store *GitHubStore) List(ctx context.Context, name string) ([]Artifact, error) {
	listed, err := store.client.ListArtifacts(ctx, store.owner, store.repo, name)
	if err != nil {
		return nil, classifyGitHubError(err)
	}

	artifacts := make([]Artifact, 0, len(listed))
	for _, entry := range listed {
		// The server filters by name too. Only exact matches count.
		if entry.Name != name {
			continue
		}
		artifact := Artifact{
			ID:        entry.ID,
			Name:      entry.Name,
			CreatedAt: entry.CreatedAt,
			ExpiresAt: entry.ExpiresAt,
			Expired:   entry.Expired,
			Size:      entry.SizeInBytes,
		}
		if entry.WorkflowRun != nil && entry.WorkflowRun.ID != 0 {
			artifact.OriginRunID = strconv.FormatInt(entry.WorkflowRun.ID, 10)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// Download fetches the artifact's zip archive and extracts it into
// destination. The archive is spooled to a temporary file because zip
// extraction needs random access.
func (store *GitHubStore) Download(ctx context.Context, artifact Artifact, destination string) error {
	body, err := store.client.DownloadArtifact(ctx, store.owner, store.repo, artifact.ID)
	if err != nil {
		return classifyGitHubError(err)
	}
	defer body.Close()

	spool, err := os.CreateTemp(store.tempDir, "workflow-agent-download-*.zip")
	if err != nil {
		return fmt.Errorf("creating download spool: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := io.Copy(spool, body)
	if err != nil {
		return fmt.Errorf("downloading artifact %d: %w", artifact.ID, err)
	}

	store.logger.Debug("artifact downloaded",
		"artifact_id", artifact.ID,
		"bytes", size,
	)

	if err := ExtractArchive(spool, size, destination); err != nil {
		return fmt.Errorf("extracting artifact %d: %w", artifact.ID, err)
	}
	return nil
}

// Upload archives files with deflate and uploads them through the
// results service.
func (store *GitHubStore) Upload(ctx context.Context, name string, files []string, root string, retention time.Duration) (*Artifact, error) {
	if store.results == nil {
		return nil, fmt.Errorf("uploading artifact %q: the Actions results service is not configured (ACTIONS_RUNTIME_TOKEN and ACTIONS_RESULTS_URL are set only inside a workflow job)", name)
	}

	spool, err := os.CreateTemp(store.tempDir, "workflow-agent-upload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("creating upload spool: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	info, err := WriteArchive(spool, root, files, CompressionDeflate)
	if err != nil {
		return nil, fmt.Errorf("archiving artifact %q: %w", name, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding upload spool: %w", err)
	}

	now := store.clock.Now()
	var expiresAt time.Time
	if retention > 0 {
		expiresAt = now.Add(retention)
	}

	artifactID, err := store.results.Upload(ctx, name, spool, info.Size, info.SHA256, expiresAt)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		ID:          artifactID,
		Name:        name,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		OriginRunID: store.runID,
		Size:        info.Size,
	}, nil
}

// classifyGitHubError attaches the store sentinels to REST failures:
// 404 and 410 (expired) become ErrNotFound, 401 and 403 ErrForbidden.
func classifyGitHubError(err error) error {
	switch {
	case github.IsNotFound(err), github.IsGone(err):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case github.IsForbidden(err):
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	default:
		return err
	}
}
