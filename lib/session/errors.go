// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "fmt"

// RestoreError reports that a selected snapshot could not be fetched
// or installed. Restore absorbs it: the run starts without history.
type RestoreError struct {
	Name       string
	ArtifactID int64
	// Stage is "download" or "install".
	Stage string
	Err   error
}

func (err *RestoreError) Error() string {
	return fmt.Sprintf("restoring session %s from artifact %d: %s: %v", err.Name, err.ArtifactID, err.Stage, err.Err)
}

func (err *RestoreError) Unwrap() error { return err.Err }

// MissingOriginError reports that the newest snapshot does not name the
// workflow run that produced it. Without the origin the snapshot
// cannot be attributed, so Restore refuses to use it or to silently
// fall back to an older one.
type MissingOriginError struct {
	Name       string
	ArtifactID int64
}

func (err *MissingOriginError) Error() string {
	return fmt.Sprintf("session artifact %s (id %d) has no origin workflow run", err.Name, err.ArtifactID)
}

// NoStateError reports that the state directory held no files to
// persist after stripping. The store is not contacted.
type NoStateError struct {
	StateDir string
}

func (err *NoStateError) Error() string {
	return fmt.Sprintf("no session state to persist under %s", err.StateDir)
}
