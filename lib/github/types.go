// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import "time"

// User is a GitHub user reference.
type User struct {
	Login   string `json:"login"`
	ID      int64  `json:"id"`
	Type    string `json:"type"` // "User", "Bot", "Organization"
	HTMLURL string `json:"html_url"`
}

// Label is a GitHub issue/PR label.
type Label struct {
	Name string `json:"name"`
}

// Branch is a git branch reference on a pull request.
type Branch struct {
	Ref string `json:"ref"` // branch name
	SHA string `json:"sha"` // head commit SHA
}

// Issue is a GitHub issue. Pull requests are issues too; PullRequest
// is non-nil for them.
type Issue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	State       string          `json:"state"` // "open" or "closed"
	HTMLURL     string          `json:"html_url"`
	User        User            `json:"user"`
	Labels      []Label         `json:"labels"`
	PullRequest *IssuePullLinks `json:"pull_request,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IssuePullLinks marks an issue that is a pull request.
type IssuePullLinks struct {
	URL     string `json:"url"`
	HTMLURL string `json:"html_url"`
}

// Comment is an issue or pull request conversation comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewComment is a comment attached to a line of a pull request diff.
type ReviewComment struct {
	ID             int64     `json:"id"`
	InReplyToID    int64     `json:"in_reply_to_id,omitempty"`
	Body           string    `json:"body"`
	Path           string    `json:"path"`
	HTMLURL        string    `json:"html_url"`
	PullRequestURL string    `json:"pull_request_url"`
	User           User      `json:"user"`
	CreatedAt      time.Time `json:"created_at"`
}

// PullRequest is a GitHub pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
	Head    Branch `json:"head"`
	Base    Branch `json:"base"`
	Draft   bool   `json:"draft"`
	Merged  bool   `json:"merged"`
}

// Repository is the subset of repository metadata workflow-agent reads.
type Repository struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
}

// Ref is a git reference (branch or tag).
type Ref struct {
	Ref    string    `json:"ref"` // "refs/heads/main"
	Object RefObject `json:"object"`
}

// RefObject is the object a ref points to.
type RefObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"` // "commit"
}

// Content is a file from the repository contents API. Content holds
// base64 text, possibly wrapped at 60 columns; use Decode.
type Content struct {
	Type     string `json:"type"` // "file", "dir", "symlink", "submodule"
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	HTMLURL  string `json:"html_url"`
}

// ContentCommit is the commit part of a contents PUT response.
type ContentCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Message string `json:"message"`
}

// ContentUpdate is the response of a contents PUT.
type ContentUpdate struct {
	Content *Content      `json:"content"`
	Commit  ContentCommit `json:"commit"`
}

// Artifact is a GitHub Actions artifact.
type Artifact struct {
	ID                 int64        `json:"id"`
	Name               string       `json:"name"`
	SizeInBytes        int64        `json:"size_in_bytes"`
	ArchiveDownloadURL string       `json:"archive_download_url"`
	Expired            bool         `json:"expired"`
	CreatedAt          time.Time    `json:"created_at"`
	ExpiresAt          time.Time    `json:"expires_at"`
	WorkflowRun        *ArtifactRun `json:"workflow_run"`
}

// ArtifactRun identifies the workflow run that uploaded an artifact.
type ArtifactRun struct {
	ID           int64  `json:"id"`
	RepositoryID int64  `json:"repository_id"`
	HeadBranch   string `json:"head_branch"`
	HeadSHA      string `json:"head_sha"`
}

// CollaboratorPermission is a user's effective permission on a
// repository. Permission is one of "admin", "write", "read", "none";
// RoleName carries finer roles such as "maintain" and "triage".
type CollaboratorPermission struct {
	Permission string `json:"permission"`
	RoleName   string `json:"role_name"`
	User       User   `json:"user"`
}

// Reaction is an emoji reaction.
type Reaction struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}
