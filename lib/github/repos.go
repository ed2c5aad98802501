// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
)

// GetRepository retrieves repository metadata, including the current
// default branch.
func (client *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var repository Repository
	path := fmt.Sprintf("/repos/%s/%s", owner, repo)
	if err := client.get(ctx, path, &repository); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &repository, nil
}

// GetCollaboratorPermission returns a user's effective permission on
// the repository.
func (client *Client) GetCollaboratorPermission(ctx context.Context, owner, repo, username string) (*CollaboratorPermission, error) {
	var permission CollaboratorPermission
	path := fmt.Sprintf("/repos/%s/%s/collaborators/%s/permission", owner, repo, url.PathEscape(username))
	if err := client.get(ctx, path, &permission); err != nil {
		return nil, fmt.Errorf("getting permission of %s on %s/%s: %w", username, owner, repo, err)
	}
	return &permission, nil
}

// ListCollaborators returns the logins of collaborators holding at
// least permission ("pull", "triage", "push", "maintain", "admin"),
// deduplicated in API order.
func (client *Client) ListCollaborators(ctx context.Context, owner, repo, permission string) ([]string, error) {
	path := fmt.Sprintf("/repos/%s/%s/collaborators?per_page=100", owner, repo)
	if permission != "" {
		path += "&permission=" + url.QueryEscape(permission)
	}
	users, err := list[User](client, path).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collaborators of %s/%s: %w", owner, repo, err)
	}

	seen := make(map[string]bool, len(users))
	logins := make([]string, 0, len(users))
	for _, user := range users {
		if seen[user.Login] {
			continue
		}
		seen[user.Login] = true
		logins = append(logins, user.Login)
	}
	return logins, nil
}
