// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ListArtifacts returns every artifact in the repository named name,
// across all workflow runs, including expired ones.
func (client *Client) ListArtifacts(ctx context.Context, owner, repo, name string) ([]Artifact, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/artifacts?per_page=100&name=%s", owner, repo, url.QueryEscape(name))
	artifacts, err := listEnvelope[Artifact](client, path, "artifacts").Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts named %q in %s/%s: %w", name, owner, repo, err)
	}
	return artifacts, nil
}

// DownloadArtifact streams an artifact's zip archive. The caller closes
// the returned reader.
//
// GitHub answers with a redirect to a short-lived blob storage URL; the
// HTTP client follows it and drops the Authorization header on the
// cross-host hop. Errors keep their *APIError so callers can tell 404
// (missing), 403 (no actions: read permission), and 410 (expired)
// apart from transport failures.
func (client *Client) DownloadArtifact(ctx context.Context, owner, repo string, artifactID int64) (io.ReadCloser, error) {
	downloadURL := client.baseURL + fmt.Sprintf("/repos/%s/%s/actions/artifacts/%d/zip", owner, repo, artifactID)

	response, err := client.doRaw(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading artifact %d in %s/%s: %w", artifactID, owner, repo, err)
	}

	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		return nil, fmt.Errorf("downloading artifact %d in %s/%s: %w", artifactID, owner, repo, parseAPIError(response))
	}

	return response.Body, nil
}
