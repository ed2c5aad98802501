// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sudden-network/workflow-agent/lib/github"
)

type definition struct {
	name        string
	title       string
	description string
	readOnly    bool
	idempotent  bool
	handler     handlerFunc
}

// definitions is the closed tool set, in tools/list order.
func (registry *Registry) definitions() []definition {
	return []definition{
		{
			name:        "create_comment",
			title:       "Create comment",
			description: "Post a Markdown comment on an issue or pull request conversation. Defaults to the issue or pull request this run is attached to.",
			handler:     bind("create_comment", registry.createComment),
		},
		{
			name:        "reply_to_review_comment",
			title:       "Reply to review comment",
			description: "Reply in the thread of a pull request review comment.",
			handler:     bind("reply_to_review_comment", registry.replyToReviewComment),
		},
		{
			name:        "create_issue",
			title:       "Create issue",
			description: "Open a new issue in this repository.",
			handler:     bind("create_issue", registry.createIssue),
		},
		{
			name:        "update_issue",
			title:       "Update issue",
			description: "Change the title, body, state or labels of an issue or pull request.",
			idempotent:  true,
			handler:     bind("update_issue", registry.updateIssue),
		},
		{
			name:        "create_branch",
			title:       "Create branch",
			description: "Create a branch from the head of another branch, by default the repository's default branch.",
			handler:     bind("create_branch", registry.createBranch),
		},
		{
			name:        "get_file_contents",
			title:       "Get file contents",
			description: "Read one file from the repository at a branch, tag or commit. Returns the blob SHA needed to update it.",
			readOnly:    true,
			idempotent:  true,
			handler:     bind("get_file_contents", registry.getFileContents),
		},
		{
			name:        "create_or_update_file",
			title:       "Create or update file",
			description: "Write one file on a branch in a single commit, creating it if it does not exist.",
			handler:     bind("create_or_update_file", registry.createOrUpdateFile),
		},
		{
			name:        "create_pull_request",
			title:       "Create pull request",
			description: "Open a pull request from a branch, by default into the repository's default branch.",
			handler:     bind("create_pull_request", registry.createPullRequest),
		},
	}
}

type createCommentParams struct {
	Body        string `json:"body"`
	IssueNumber int    `json:"issue_number"`
}

// CommentResult is returned by create_comment and
// reply_to_review_comment.
type CommentResult struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

func (registry *Registry) createComment(ctx context.Context, params createCommentParams) (any, error) {
	number := params.IssueNumber
	if number == 0 {
		number = registry.subject.Number
	}
	if number <= 0 {
		return nil, &ValidationError{Tool: "create_comment", Err: fmt.Errorf("issue_number is required: this run is not attached to an issue or pull request")}
	}

	comment, err := registry.repository.CreateIssueComment(ctx, registry.subject.Owner, registry.subject.Repo, number, params.Body)
	if err != nil {
		return nil, err
	}
	return CommentResult{ID: comment.ID, URL: comment.HTMLURL}, nil
}

type replyToReviewCommentParams struct {
	CommentID int64  `json:"comment_id"`
	Body      string `json:"body"`
}

func (registry *Registry) replyToReviewComment(ctx context.Context, params replyToReviewCommentParams) (any, error) {
	owner, repo := registry.subject.Owner, registry.subject.Repo

	target, err := registry.repository.GetReviewComment(ctx, owner, repo, params.CommentID)
	if err != nil {
		return nil, err
	}
	pullNumber, err := target.PullNumber()
	if err != nil {
		return nil, err
	}

	// Replies attach to the thread's top-level comment.
	threadID := target.ID
	if target.InReplyToID != 0 {
		threadID = target.InReplyToID
	}

	reply, err := registry.repository.CreateReviewCommentReply(ctx, owner, repo, pullNumber, threadID, params.Body)
	if err != nil {
		return nil, err
	}
	return CommentResult{ID: reply.ID, URL: reply.HTMLURL}, nil
}

type createIssueParams struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels"`
	Assignees []string `json:"assignees"`
}

// IssueResult is returned by create_issue, update_issue and
// create_pull_request.
type IssueResult struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

func (registry *Registry) createIssue(ctx context.Context, params createIssueParams) (any, error) {
	issue, err := registry.repository.CreateIssue(ctx, registry.subject.Owner, registry.subject.Repo, github.CreateIssueRequest{
		Title:     params.Title,
		Body:      params.Body,
		Labels:    params.Labels,
		Assignees: params.Assignees,
	})
	if err != nil {
		return nil, err
	}
	return IssueResult{Number: issue.Number, URL: issue.HTMLURL}, nil
}

type updateIssueParams struct {
	IssueNumber int       `json:"issue_number"`
	Title       *string   `json:"title"`
	Body        *string   `json:"body"`
	State       *string   `json:"state"`
	Labels      *[]string `json:"labels"`
}

func (registry *Registry) updateIssue(ctx context.Context, params updateIssueParams) (any, error) {
	request := github.UpdateIssueRequest{
		Title: params.Title,
		Body:  params.Body,
		State: params.State,
	}
	if params.Labels != nil {
		// An explicit empty list clears labels; it must be sent as [].
		labels := *params.Labels
		if labels == nil {
			labels = []string{}
		}
		request.Labels = &labels
	}

	issue, err := registry.repository.UpdateIssue(ctx, registry.subject.Owner, registry.subject.Repo, params.IssueNumber, request)
	if err != nil {
		return nil, err
	}
	return IssueResult{Number: issue.Number, URL: issue.HTMLURL}, nil
}

type createBranchParams struct {
	Branch string `json:"branch"`
	Base   string `json:"base"`
}

// BranchResult is returned by create_branch.
type BranchResult struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

func (registry *Registry) createBranch(ctx context.Context, params createBranchParams) (any, error) {
	owner, repo := registry.subject.Owner, registry.subject.Repo

	base, err := registry.resolveBase(ctx, params.Base)
	if err != nil {
		return nil, err
	}
	baseRef, err := registry.repository.GetBranchRef(ctx, owner, repo, base)
	if err != nil {
		return nil, err
	}

	ref, err := registry.repository.CreateBranch(ctx, owner, repo, params.Branch, baseRef.Object.SHA)
	if err != nil {
		return nil, err
	}
	return BranchResult{Ref: ref.Ref, SHA: ref.Object.SHA}, nil
}

type getFileContentsParams struct {
	Path string `json:"path"`
	Ref  string `json:"ref"`
}

// FileResult is returned by get_file_contents. Content is the decoded
// file text.
type FileResult struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	Content string `json:"content"`
}

func (registry *Registry) getFileContents(ctx context.Context, params getFileContentsParams) (any, error) {
	content, err := registry.repository.GetContents(ctx, registry.subject.Owner, registry.subject.Repo, params.Path, params.Ref)
	if err != nil {
		return nil, err
	}
	if content.Type != "" && content.Type != "file" {
		return nil, fmt.Errorf("%s is a %s, not a file", params.Path, content.Type)
	}
	data, err := content.Decode()
	if err != nil {
		return nil, err
	}
	return FileResult{
		Path:    content.Path,
		SHA:     content.SHA,
		Size:    content.Size,
		Content: string(data),
	}, nil
}

type createOrUpdateFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Message string `json:"message"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha"`
}

// CommitResult is returned by create_or_update_file.
type CommitResult struct {
	CommitSHA string `json:"commit_sha"`
	URL       string `json:"url"`
}

func (registry *Registry) createOrUpdateFile(ctx context.Context, params createOrUpdateFileParams) (any, error) {
	owner, repo := registry.subject.Owner, registry.subject.Repo
	path := strings.TrimPrefix(params.Path, "/")

	sha := params.SHA
	if sha == "" {
		existing, err := registry.repository.GetContents(ctx, owner, repo, path, params.Branch)
		switch {
		case err == nil:
			sha = existing.SHA
		case github.IsNotFound(err):
			// Create.
		default:
			return nil, err
		}
	}

	update, err := registry.repository.PutContents(ctx, owner, repo, path, github.PutContentRequest{
		Message: params.Message,
		Content: base64.StdEncoding.EncodeToString([]byte(params.Content)),
		Branch:  params.Branch,
		SHA:     sha,
	})
	if err != nil {
		return nil, err
	}

	url := update.Commit.HTMLURL
	if update.Content != nil && update.Content.HTMLURL != "" {
		url = update.Content.HTMLURL
	}
	return CommitResult{CommitSHA: update.Commit.SHA, URL: url}, nil
}

type createPullRequestParams struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
	Draft bool   `json:"draft"`
}

func (registry *Registry) createPullRequest(ctx context.Context, params createPullRequestParams) (any, error) {
	base, err := registry.resolveBase(ctx, params.Base)
	if err != nil {
		return nil, err
	}

	pullRequest, err := registry.repository.CreatePullRequest(ctx, registry.subject.Owner, registry.subject.Repo, github.CreatePullRequestRequest{
		Title: params.Title,
		Head:  params.Head,
		Base:  base,
		Body:  params.Body,
		Draft: params.Draft,
	})
	if err != nil {
		return nil, err
	}
	return IssueResult{Number: pullRequest.Number, URL: pullRequest.HTMLURL}, nil
}

// resolveBase returns base, or the repository's current default branch
// when base is empty.
func (registry *Registry) resolveBase(ctx context.Context, base string) (string, error) {
	if base != "" {
		return base, nil
	}
	repository, err := registry.repository.GetRepository(ctx, registry.subject.Owner, registry.subject.Repo)
	if err != nil {
		return "", err
	}
	if repository.DefaultBranch == "" {
		return "", fmt.Errorf("repository %s/%s reports no default branch", registry.subject.Owner, registry.subject.Repo)
	}
	return repository.DefaultBranch, nil
}
