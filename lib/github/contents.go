// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// PutContentRequest creates or updates one file. SHA must be the blob
// SHA of the current file when updating and empty when creating.
type PutContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"` // base64
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

// GetContents retrieves one file at ref (a branch, tag, or SHA; empty
// means the default branch). A path naming a directory is an error.
func (client *Client) GetContents(ctx context.Context, owner, repo, path, ref string) (*Content, error) {
	requestPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(strings.TrimPrefix(path, "/")))
	if ref != "" {
		requestPath += "?ref=" + url.QueryEscape(ref)
	}

	body, _, err := client.do(ctx, http.MethodGet, requestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("getting contents of %s in %s/%s: %w", path, owner, repo, err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
		return nil, fmt.Errorf("getting contents of %s in %s/%s: path is a directory", path, owner, repo)
	}

	var content Content
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Errorf("decoding contents of %s: %w", path, err)
	}
	return &content, nil
}

// PutContents creates or updates a file with a single commit.
func (client *Client) PutContents(ctx context.Context, owner, repo, path string, request PutContentRequest) (*ContentUpdate, error) {
	var update ContentUpdate
	requestPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(strings.TrimPrefix(path, "/")))
	if err := client.put(ctx, requestPath, request, &update); err != nil {
		return nil, fmt.Errorf("writing %s in %s/%s: %w", path, owner, repo, err)
	}
	return &update, nil
}

// Decode returns the file's bytes. Only base64-encoded content is
// supported; files over 1 MB come back with an empty encoding and must
// be fetched through the blob API instead.
func (content *Content) Decode() ([]byte, error) {
	if content.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding %q for %s", content.Encoding, content.Path)
	}
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(content.Content)
	return base64.StdEncoding.DecodeString(cleaned)
}
