// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"

	"github.com/sudden-network/workflow-agent/lib/secret"
)

// authenticator provides Authorization header values.
type authenticator interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// tokenAuth is a static Bearer token, used by tests and by callers
// that already hold the token as a string.
type tokenAuth struct {
	header string
}

func newTokenAuth(token string) *tokenAuth {
	return &tokenAuth{header: "Bearer " + token}
}

func (auth *tokenAuth) AuthorizationHeader(_ context.Context) (string, error) {
	return auth.header, nil
}

// credentialAuth reads the token from a locked buffer on every request,
// so the only long-lived copy stays outside the Go heap.
type credentialAuth struct {
	credential *secret.Buffer
}

func (auth *credentialAuth) AuthorizationHeader(_ context.Context) (string, error) {
	return "Bearer " + auth.credential.String(), nil
}
