// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a typed client for the subset of the GitHub REST
// API that workflow-agent uses: issues and comments, pull requests and
// review comment replies, git refs, repository contents, collaborator
// permissions, reactions, and Actions artifacts.
//
// The client authenticates with a token, either a plain string or a
// [secret.Buffer] holding the workflow's privileged credential. It
// waits out exhausted rate limits (X-RateLimit-* headers, one retry on
// a rate-limited response), follows RFC 5988 Link pagination, and maps
// non-2xx responses to [*APIError].
//
// Responses are never cached: tool handlers resolve default branches
// and file revisions on every call, and a conditional-request cache
// would let a stale revision leak across calls in one process.
//
// The client refuses non-HTTPS base URLs.
package github
