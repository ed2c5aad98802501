// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact is the durable snapshot store behind session
// continuity.
//
// A [Store] keeps named, immutable snapshots of a directory tree. Each
// upload creates a new [Artifact]; nothing is ever overwritten or
// deleted by this package. Retention is the backend's job: an upload
// carries a retention window and the backend expires it.
//
// Three backends implement Store:
//
//   - [GitHubStore] uses GitHub Actions artifacts: the REST API for
//     listing and downloading, and the Actions results service for
//     uploading from inside a workflow run.
//   - [S3Store] uses an S3-compatible bucket, one object per snapshot.
//   - [DirStore] uses a local directory, for runs outside Actions.
//
// Snapshots travel as zip archives (see [WriteArchive]). The GitHub
// backend uses deflate so that archives open anywhere; the S3 and
// directory backends use zstd.
package artifact

import (
	"context"
	"errors"
	"time"
)

// LocalRunID is the origin the s3 and dir backends record when no
// workflow run ID is configured.
const LocalRunID = "local"

// Sentinel errors returned (wrapped) by Store.Download. Anything else
// is a transport or I/O failure.
var (
	// ErrNotFound means the artifact's data is absent: never uploaded,
	// deleted, or already expired by the backend.
	ErrNotFound = errors.New("artifact not found")

	// ErrForbidden means the credential cannot read the artifact.
	ErrForbidden = errors.New("artifact access denied")
)

// Artifact describes one stored snapshot.
type Artifact struct {
	// ID orders snapshots uploaded at the same instant. Larger is newer.
	ID int64

	// Name is the snapshot's key, shared by all snapshots of a session.
	Name string

	// CreatedAt is when the snapshot was uploaded.
	CreatedAt time.Time

	// ExpiresAt is when retention lapses. Zero means unknown.
	ExpiresAt time.Time

	// Expired is set by the backend once retention has lapsed.
	Expired bool

	// OriginRunID identifies the workflow run that uploaded the
	// snapshot. Empty when the backend could not resolve it.
	OriginRunID string

	// Size is the archive size in bytes, when known.
	Size int64
}

// IsExpired reports whether the backend marked the artifact expired or
// its expiry time is at or before now.
func (artifact Artifact) IsExpired(now time.Time) bool {
	if artifact.Expired {
		return true
	}
	return !artifact.ExpiresAt.IsZero() && !artifact.ExpiresAt.After(now)
}

// Store is a durable artifact store.
type Store interface {
	// List returns every artifact named name, expired ones included,
	// in no particular order.
	List(ctx context.Context, name string) ([]Artifact, error)

	// Download extracts the artifact's files into destination, which
	// must exist. Errors wrap ErrNotFound or ErrForbidden when the
	// backend reports those conditions.
	Download(ctx context.Context, artifact Artifact, destination string) error

	// Upload stores files (slash-separated paths relative to root) as a
	// new artifact named name, retained for retention.
	Upload(ctx context.Context, name string, files []string, root string, retention time.Duration) (*Artifact, error)
}
