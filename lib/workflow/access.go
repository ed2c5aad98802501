// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sudden-network/workflow-agent/lib/github"
)

// PermissionSource looks up an actor's permission on a repository.
type PermissionSource interface {
	GetCollaboratorPermission(ctx context.Context, owner, repo, username string) (*github.CollaboratorPermission, error)
}

// CollaboratorSource lists repository collaborators.
type CollaboratorSource interface {
	ListCollaborators(ctx context.Context, owner, repo, permission string) ([]string, error)
}

// SubjectSource re-reads the subject and comment an event refers to.
type SubjectSource interface {
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	GetIssueComment(ctx context.Context, owner, repo string, commentID int64) (*github.Comment, error)
}

var (
	_ PermissionSource   = (*github.Client)(nil)
	_ CollaboratorSource = (*github.Client)(nil)
	_ SubjectSource      = (*github.Client)(nil)
)

// AccessError reports an actor without write access.
type AccessError struct {
	Actor      string
	Repository string
	// Permission is the detected permission, empty when the actor is
	// not a collaborator at all.
	Permission string
}

func (err *AccessError) Error() string {
	if err.Permission == "" {
		return fmt.Sprintf("actor %q is not a collaborator on %s; write access is required", err.Actor, err.Repository)
	}
	return fmt.Sprintf("actor %q must have write access to %s; detected permission %q", err.Actor, err.Repository, err.Permission)
}

// EnsureWriteAccess returns nil when the run's actor may drive the agent:
// bots, actors listed in trusted, and collaborators holding admin,
// maintain or write permission. Anyone else gets *AccessError.
func EnsureWriteAccess(ctx context.Context, source PermissionSource, run *Context, trusted []string) error {
	if run.IsBot() || slices.ContainsFunc(trusted, func(login string) bool {
		return strings.EqualFold(login, run.Actor)
	}) {
		return nil
	}
	if run.Actor == "" {
		return &AccessError{Repository: run.Owner + "/" + run.Repo}
	}

	permission, err := source.GetCollaboratorPermission(ctx, run.Owner, run.Repo, run.Actor)
	if err != nil {
		if github.IsNotFound(err) {
			return &AccessError{Actor: run.Actor, Repository: run.Owner + "/" + run.Repo}
		}
		return fmt.Errorf("verifying permissions for %q: %w", run.Actor, err)
	}
	if !hasWriteAccess(permission) {
		detected := permission.Permission
		if detected == "" {
			detected = "none"
		}
		return &AccessError{Actor: run.Actor, Repository: run.Owner + "/" + run.Repo, Permission: detected}
	}
	return nil
}

// hasWriteAccess checks both the coarse permission and the role name;
// the API reports maintainers as permission "write", role "maintain".
func hasWriteAccess(permission *github.CollaboratorPermission) bool {
	for _, value := range []string{permission.Permission, permission.RoleName} {
		switch value {
		case "admin", "maintain", "write":
			return true
		}
	}
	return false
}

// TrustedCollaborators lists the collaborators with push access. Their
// comments are instructions; anyone else's are information.
func TrustedCollaborators(ctx context.Context, source CollaboratorSource, run *Context) ([]string, error) {
	logins, err := source.ListCollaborators(ctx, run.Owner, run.Repo, "push")
	if err != nil {
		return nil, fmt.Errorf("listing trusted collaborators for %s/%s: %w", run.Owner, run.Repo, err)
	}
	return logins, nil
}

// IsStale reports whether an edited event no longer matches GitHub: the
// edited comment (or the issue title and body) has changed again since
// the event fired, so a newer run will handle it. Events other than
// "edited" are never stale.
func IsStale(ctx context.Context, source SubjectSource, run *Context) (bool, error) {
	event := run.Event
	if event.Action != "edited" {
		return false, nil
	}

	if event.Comment != nil && event.Comment.ID > 0 {
		if event.Comment.PullRequestURL != "" {
			// Only conversation comments are rechecked.
			return false, nil
		}
		current, err := source.GetIssueComment(ctx, run.Owner, run.Repo, event.Comment.ID)
		if err != nil {
			return false, fmt.Errorf("checking edited comment: %w", err)
		}
		return current.Body != event.Comment.Body, nil
	}

	if event.Issue != nil && event.Issue.Number > 0 {
		current, err := source.GetIssue(ctx, run.Owner, run.Repo, event.Issue.Number)
		if err != nil {
			return false, fmt.Errorf("checking edited issue: %w", err)
		}
		return current.Title != event.Issue.Title || current.Body != event.Issue.Body, nil
	}
	return false, nil
}
