// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select with a
// wall-clock fallback so tests never hang on a missed signal.
// [WriteTree] and [ReadTree] build and snapshot small directory trees,
// which is how the session and artifact tests describe state
// directories.
//
// All helpers call t.Fatalf on failure.
package testutil
