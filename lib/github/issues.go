// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// CreateIssueRequest contains the fields for creating a new issue.
type CreateIssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

// UpdateIssueRequest contains the fields for updating an issue. Only
// non-nil fields are sent in the PATCH request.
type UpdateIssueRequest struct {
	Title  *string   `json:"title,omitempty"`
	Body   *string   `json:"body,omitempty"`
	State  *string   `json:"state,omitempty"` // "open" or "closed"
	Labels *[]string `json:"labels,omitempty"`
}

// CreateIssue creates a new issue in a repository.
func (client *Client) CreateIssue(ctx context.Context, owner, repo string, request CreateIssueRequest) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
	if err := client.post(ctx, path, request, &issue); err != nil {
		return nil, fmt.Errorf("creating issue in %s/%s: %w", owner, repo, err)
	}
	return &issue, nil
}

// GetIssue retrieves a single issue by number.
func (client *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	if err := client.get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("getting issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return &issue, nil
}

// UpdateIssue updates an existing issue or pull request's issue fields.
func (client *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, request UpdateIssueRequest) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	if err := client.patch(ctx, path, request, &issue); err != nil {
		return nil, fmt.Errorf("updating issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return &issue, nil
}

// CreateIssueComment creates a comment on an issue or pull request.
func (client *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	var comment Comment
	request := struct {
		Body string `json:"body"`
	}{Body: body}
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	if err := client.post(ctx, path, request, &comment); err != nil {
		return nil, fmt.Errorf("creating comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return &comment, nil
}

// GetIssueComment retrieves a conversation comment by ID.
func (client *Client) GetIssueComment(ctx context.Context, owner, repo string, commentID int64) (*Comment, error) {
	var comment Comment
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID)
	if err := client.get(ctx, path, &comment); err != nil {
		return nil, fmt.Errorf("getting comment %d in %s/%s: %w", commentID, owner, repo, err)
	}
	return &comment, nil
}
