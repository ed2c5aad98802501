// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// GetBranchRef resolves a branch name to its ref and head commit.
func (client *Client) GetBranchRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	var ref Ref
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, escapePath(branch))
	if err := client.get(ctx, path, &ref); err != nil {
		return nil, fmt.Errorf("getting branch %q in %s/%s: %w", branch, owner, repo, err)
	}
	return &ref, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha.
func (client *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*Ref, error) {
	var ref Ref
	request := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/heads/" + branch, SHA: sha}
	path := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	if err := client.post(ctx, path, request, &ref); err != nil {
		return nil, fmt.Errorf("creating branch %q at %s in %s/%s: %w", branch, sha, owner, repo, err)
	}
	return &ref, nil
}

// escapePath escapes each slash-separated segment, keeping the slashes
// that GitHub expects between segments of branch names and file paths.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
