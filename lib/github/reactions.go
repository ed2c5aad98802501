// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// Reaction contents accepted by GitHub.
const (
	ReactionEyes     = "eyes"
	ReactionRocket   = "rocket"
	ReactionThumbsUp = "+1"
)

// ReactionTarget selects which kind of resource a reaction is added to.
type ReactionTarget int

const (
	// ReactToIssue reacts to an issue or pull request body.
	ReactToIssue ReactionTarget = iota
	// ReactToIssueComment reacts to a conversation comment.
	ReactToIssueComment
	// ReactToReviewComment reacts to a review comment on a diff.
	ReactToReviewComment
)

// CreateReaction adds a reaction. id is the issue number for
// ReactToIssue and the comment ID otherwise.
func (client *Client) CreateReaction(ctx context.Context, owner, repo string, target ReactionTarget, id int64, content string) (*Reaction, error) {
	var path string
	switch target {
	case ReactToIssue:
		path = fmt.Sprintf("/repos/%s/%s/issues/%d/reactions", owner, repo, id)
	case ReactToIssueComment:
		path = fmt.Sprintf("/repos/%s/%s/issues/comments/%d/reactions", owner, repo, id)
	case ReactToReviewComment:
		path = fmt.Sprintf("/repos/%s/%s/pulls/comments/%d/reactions", owner, repo, id)
	default:
		return nil, fmt.Errorf("unknown reaction target %d", target)
	}

	var reaction Reaction
	request := struct {
		Content string `json:"content"`
	}{Content: content}
	if err := client.post(ctx, path, request, &reaction); err != nil {
		return nil, fmt.Errorf("adding %s reaction in %s/%s: %w", content, owner, repo, err)
	}
	return &reaction, nil
}
