// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package tools is the closed set of repository operations the agent
// may ask the bridge to perform.
//
// Each tool has a name, a JSON Schema for its arguments (embedded JSONC
// under schemas/), and a handler that performs one GitHub API operation
// with the bridge's credential. [Registry.Call] validates arguments
// before the handler runs; a call that fails validation never reaches
// GitHub. Handlers return small result objects (ids, numbers, URLs),
// never full API responses.
//
// Values a handler derives from the repository, such as the default
// branch or a file's current blob SHA, are fetched on every call.
package tools

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"

	"github.com/sudden-network/workflow-agent/lib/github"
)

//go:embed schemas/*.jsonc
var schemaFiles embed.FS

// Repository is the GitHub API surface the tools use. *github.Client
// implements it.
type Repository interface {
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*github.Comment, error)
	GetReviewComment(ctx context.Context, owner, repo string, commentID int64) (*github.ReviewComment, error)
	CreateReviewCommentReply(ctx context.Context, owner, repo string, pullNumber int, commentID int64, body string) (*github.ReviewComment, error)
	CreateIssue(ctx context.Context, owner, repo string, request github.CreateIssueRequest) (*github.Issue, error)
	UpdateIssue(ctx context.Context, owner, repo string, number int, request github.UpdateIssueRequest) (*github.Issue, error)
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	GetBranchRef(ctx context.Context, owner, repo, branch string) (*github.Ref, error)
	CreateBranch(ctx context.Context, owner, repo, branch, sha string) (*github.Ref, error)
	GetContents(ctx context.Context, owner, repo, path, ref string) (*github.Content, error)
	PutContents(ctx context.Context, owner, repo, path string, request github.PutContentRequest) (*github.ContentUpdate, error)
	CreatePullRequest(ctx context.Context, owner, repo string, request github.CreatePullRequestRequest) (*github.PullRequest, error)
}

var _ Repository = (*github.Client)(nil)

// Subject is the repository and issue or pull request a run is
// attached to. Tools act on this repository only.
type Subject struct {
	Owner  string
	Repo   string
	Number int
}

// Descriptor describes a tool for tools/list.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema json.RawMessage
	ReadOnly    bool
	Idempotent  bool
}

type handlerFunc func(ctx context.Context, arguments json.RawMessage) (any, error)

type tool struct {
	descriptor Descriptor
	schema     *jsonschema.Schema
	handler    handlerFunc
}

// Registry holds the tools bound to one repository and subject.
// It is safe for concurrent use.
type Registry struct {
	repository Repository
	subject    Subject
	logger     *slog.Logger

	tools  []*tool
	byName map[string]*tool
}

// NewRegistry compiles every tool schema and binds the handlers to
// repository and subject. A schema that fails to compile is a build
// defect and fails construction.
func NewRegistry(repository Repository, subject Subject, logger *slog.Logger) (*Registry, error) {
	if repository == nil {
		return nil, fmt.Errorf("tool registry requires a repository")
	}
	if subject.Owner == "" || subject.Repo == "" {
		return nil, fmt.Errorf("tool registry requires a repository owner and name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := &Registry{
		repository: repository,
		subject:    subject,
		logger:     logger,
		byName:     make(map[string]*tool),
	}

	for _, definition := range registry.definitions() {
		source, err := schemaFiles.ReadFile("schemas/" + definition.name + ".jsonc")
		if err != nil {
			return nil, fmt.Errorf("reading schema for %s: %w", definition.name, err)
		}
		schemaJSON := jsonc.ToJSON(source)
		compiled, err := jsonschema.CompileString(definition.name+".json", string(schemaJSON))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", definition.name, err)
		}

		entry := &tool{
			descriptor: Descriptor{
				Name:        definition.name,
				Title:       definition.title,
				Description: definition.description,
				InputSchema: json.RawMessage(schemaJSON),
				ReadOnly:    definition.readOnly,
				Idempotent:  definition.idempotent,
			},
			schema:  compiled,
			handler: definition.handler,
		}
		registry.tools = append(registry.tools, entry)
		registry.byName[definition.name] = entry
	}

	return registry, nil
}

// List returns every tool's descriptor in registration order.
func (registry *Registry) List() []Descriptor {
	descriptors := make([]Descriptor, len(registry.tools))
	for index, entry := range registry.tools {
		descriptors[index] = entry.descriptor
	}
	return descriptors
}

// Call validates arguments against the named tool's schema and runs its
// handler. Errors are *UnknownToolError, *ValidationError or
// *ExecutionError.
func (registry *Registry) Call(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	entry, ok := registry.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	if len(bytes.TrimSpace(arguments)) == 0 || bytes.Equal(bytes.TrimSpace(arguments), []byte("null")) {
		arguments = json.RawMessage("{}")
	}

	decoder := json.NewDecoder(bytes.NewReader(arguments))
	decoder.UseNumber()
	var document any
	if err := decoder.Decode(&document); err != nil {
		return nil, &ValidationError{Tool: name, Err: fmt.Errorf("arguments are not valid JSON: %w", err)}
	}
	if err := entry.schema.Validate(document); err != nil {
		return nil, &ValidationError{Tool: name, Err: err}
	}

	start := time.Now()
	result, err := entry.handler(ctx, arguments)
	if err != nil {
		if _, isValidation := err.(*ValidationError); isValidation {
			return nil, err
		}
		category := classify(err)
		registry.logger.Warn("tool call failed",
			"tool", name,
			"category", category,
			"duration", time.Since(start),
			"error", err,
		)
		return nil, &ExecutionError{Tool: name, Category: category, Err: err}
	}

	registry.logger.Info("tool call succeeded",
		"tool", name,
		"duration", time.Since(start),
	)
	return result, nil
}

// bind adapts a typed handler to the raw-arguments form. Arguments have
// passed schema validation by the time it decodes them.
func bind[P any](name string, handle func(ctx context.Context, params P) (any, error)) handlerFunc {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params P
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, &ValidationError{Tool: name, Err: err}
		}
		return handle(ctx, params)
	}
}
