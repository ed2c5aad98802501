// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"strconv"
)

// DefaultArtifactPrefix prefixes every session artifact name.
const DefaultArtifactPrefix = "workflow-agent"

// Kind is the type of subject a session is attached to.
type Kind string

const (
	KindIssue       Kind = "issue"
	KindPullRequest Kind = "pull_request"
)

// segment is the kind's component in a key string. Pull requests use
// "pr" so that artifact names stay short and match existing artifacts.
func (kind Kind) segment() string {
	if kind == KindPullRequest {
		return "pr"
	}
	return string(kind)
}

// Key identifies the conversation a run continues: one issue or one
// pull request. Issues and pull requests share a number space on
// GitHub, but the kind is still part of the key so a key never depends
// on that.
type Key struct {
	Kind   Kind
	Number int
}

// NewKey validates and returns a session key.
func NewKey(kind Kind, number int) (Key, error) {
	switch kind {
	case KindIssue, KindPullRequest:
	default:
		return Key{}, fmt.Errorf("unknown session subject kind %q", kind)
	}
	if number <= 0 {
		return Key{}, fmt.Errorf("session subject number must be positive, got %d", number)
	}
	return Key{Kind: kind, Number: number}, nil
}

// String returns the key's canonical form, e.g. "issue-42" or "pr-7".
func (key Key) String() string {
	return key.Kind.segment() + "-" + strconv.Itoa(key.Number)
}

// ArtifactName returns the artifact name holding this session's
// snapshots, "<prefix>-<key>". An empty prefix means
// DefaultArtifactPrefix.
func (key Key) ArtifactName(prefix string) string {
	if prefix == "" {
		prefix = DefaultArtifactPrefix
	}
	return prefix + "-" + key.String()
}
