// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sudden-network/workflow-agent/lib/artifact"
	"github.com/sudden-network/workflow-agent/lib/config"
	"github.com/sudden-network/workflow-agent/lib/github"
	"github.com/sudden-network/workflow-agent/lib/workflow"
)

// storeOptions is what every backend needs besides its own config.
type storeOptions struct {
	client  *github.Client
	run     *workflow.Context
	getenv  func(string) string
	tempDir string
	logger  *slog.Logger
}

// openStore builds the artifact store named by storeConfig.Backend.
func openStore(ctx context.Context, storeConfig config.StoreConfig, options storeOptions) (artifact.Store, error) {
	switch storeConfig.Backend {
	case config.BackendGitHub:
		// Uploads go through the Actions results service, which only
		// exists inside a running job. Without it the store can still
		// restore, and Persist reports the missing runtime.
		results, err := artifact.NewResultsClient(artifact.ResultsConfig{
			URL:          options.getenv("ACTIONS_RESULTS_URL"),
			RuntimeToken: options.getenv("ACTIONS_RUNTIME_TOKEN"),
		})
		if err != nil {
			options.logger.Warn("artifact uploads unavailable", "error", err)
		}
		return artifact.NewGitHubStore(artifact.GitHubStoreConfig{
			Client:  options.client,
			Owner:   options.run.Owner,
			Repo:    options.run.Repo,
			Results: results,
			RunID:   options.run.RunID,
			TempDir: options.tempDir,
			Logger:  options.logger,
		})

	case config.BackendS3:
		s3Config := storeConfig.S3
		return artifact.NewS3Store(ctx, artifact.S3StoreConfig{
			Bucket:          s3Config.Bucket,
			Region:          s3Config.Region,
			Endpoint:        s3Config.Endpoint,
			Prefix:          s3Config.Prefix,
			AccessKeyID:     s3Config.AccessKeyID,
			SecretAccessKey: s3Config.SecretAccessKey,
			UsePathStyle:    s3Config.UsePathStyle,
			RunID:           options.run.RunID,
			TempDir:         options.tempDir,
			Logger:          options.logger,
		})

	case config.BackendDir:
		return artifact.NewDirStore(artifact.DirStoreConfig{
			Root:   storeConfig.Dir,
			RunID:  options.run.RunID,
			Logger: options.logger,
		})

	default:
		return nil, fmt.Errorf("unknown store backend %q", storeConfig.Backend)
	}
}
