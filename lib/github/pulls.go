// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CreatePullRequestRequest contains the fields for opening a pull
// request.
type CreatePullRequestRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
	Draft bool   `json:"draft,omitempty"`
}

// CreatePullRequest opens a pull request.
func (client *Client) CreatePullRequest(ctx context.Context, owner, repo string, request CreatePullRequestRequest) (*PullRequest, error) {
	var pullRequest PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	if err := client.post(ctx, path, request, &pullRequest); err != nil {
		return nil, fmt.Errorf("creating pull request %s -> %s in %s/%s: %w", request.Head, request.Base, owner, repo, err)
	}
	return &pullRequest, nil
}

// GetPullRequest retrieves a single pull request by number.
func (client *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var pullRequest PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := client.get(ctx, path, &pullRequest); err != nil {
		return nil, fmt.Errorf("getting pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return &pullRequest, nil
}

// GetReviewComment retrieves a pull request review comment by ID.
func (client *Client) GetReviewComment(ctx context.Context, owner, repo string, commentID int64) (*ReviewComment, error) {
	var comment ReviewComment
	path := fmt.Sprintf("/repos/%s/%s/pulls/comments/%d", owner, repo, commentID)
	if err := client.get(ctx, path, &comment); err != nil {
		return nil, fmt.Errorf("getting review comment %d in %s/%s: %w", commentID, owner, repo, err)
	}
	return &comment, nil
}

// CreateReviewCommentReply replies in the thread of a top-level review
// comment. GitHub requires the pull request number in the path even
// though the comment ID alone identifies the thread.
func (client *Client) CreateReviewCommentReply(ctx context.Context, owner, repo string, pullNumber int, commentID int64, body string) (*ReviewComment, error) {
	var reply ReviewComment
	request := struct {
		Body string `json:"body"`
	}{Body: body}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments/%d/replies", owner, repo, pullNumber, commentID)
	if err := client.post(ctx, path, request, &reply); err != nil {
		return nil, fmt.Errorf("replying to review comment %d on %s/%s#%d: %w", commentID, owner, repo, pullNumber, err)
	}
	return &reply, nil
}

// PullNumber extracts the pull request number from the comment's
// pull_request_url (".../pulls/17").
func (comment *ReviewComment) PullNumber() (int, error) {
	index := strings.LastIndex(comment.PullRequestURL, "/pulls/")
	if index < 0 {
		return 0, fmt.Errorf("review comment %d has no pull request URL (got %q)", comment.ID, comment.PullRequestURL)
	}
	number, err := strconv.Atoi(comment.PullRequestURL[index+len("/pulls/"):])
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("review comment %d has malformed pull request URL %q", comment.ID, comment.PullRequestURL)
	}
	return number, nil
}
