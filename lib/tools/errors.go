// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sudden-network/workflow-agent/lib/github"
)

// Category classifies tool failures so the agent can decide whether to
// fix its input, retry, or give up without parsing message text.
type Category string

const (
	// CategoryValidation means the arguments were wrong: schema
	// violations, or a request GitHub rejected as unprocessable.
	CategoryValidation Category = "validation"

	// CategoryNotFound means a referenced issue, comment, branch or
	// file does not exist.
	CategoryNotFound Category = "not_found"

	// CategoryForbidden means the bridge's credential may not perform
	// the operation.
	CategoryForbidden Category = "forbidden"

	// CategoryConflict means the operation conflicts with current
	// state, such as a stale file SHA or an existing branch.
	CategoryConflict Category = "conflict"

	// CategoryTransient means a temporary failure: rate limits, server
	// errors, network trouble. Repeating the call may succeed.
	CategoryTransient Category = "transient"

	// CategoryInternal is everything else.
	CategoryInternal Category = "internal"
)

// Retryable reports whether repeating an identical call might succeed.
func (category Category) Retryable() bool {
	return category == CategoryTransient
}

// UnknownToolError is returned by Call for a name outside the registry.
type UnknownToolError struct {
	Name string
}

func (err *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", err.Name)
}

// ValidationError means a tool's arguments did not satisfy its schema.
// The handler did not run.
type ValidationError struct {
	Tool string
	Err  error
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", err.Tool, err.Err)
}

func (err *ValidationError) Unwrap() error { return err.Err }

// ExecutionError means a tool's handler failed, almost always at the
// GitHub API.
type ExecutionError struct {
	Tool     string
	Category Category
	Err      error
}

func (err *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", err.Tool, err.Err)
}

func (err *ExecutionError) Unwrap() error { return err.Err }

// CategoryOf returns the category of any error Call can return.
func CategoryOf(err error) Category {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return CategoryValidation
	}
	var unknown *UnknownToolError
	if errors.As(err, &unknown) {
		return CategoryValidation
	}
	var execution *ExecutionError
	if errors.As(err, &execution) {
		return execution.Category
	}
	return classify(err)
}

// classify maps a handler error to a category.
func classify(err error) Category {
	switch {
	case github.IsRateLimited(err):
		return CategoryTransient
	case github.IsValidationFailed(err):
		return CategoryValidation
	case github.IsNotFound(err):
		return CategoryNotFound
	case github.IsForbidden(err):
		return CategoryForbidden
	case github.IsConflict(err):
		return CategoryConflict
	case github.IsServerError(err):
		return CategoryTransient
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CategoryTransient
	}

	var netError net.Error
	if errors.As(err, &netError) {
		return CategoryTransient
	}
	return CategoryInternal
}
