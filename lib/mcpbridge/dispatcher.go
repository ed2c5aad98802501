// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sudden-network/workflow-agent/lib/tools"
)

// outcomeOK labels successful tool calls in metrics.
const outcomeOK = "ok"

// dispatcher answers the JSON-RPC methods of one session. Its mutex is
// held for the whole of each call, so a session's requests are answered
// one at a time in arrival order.
type dispatcher struct {
	tools        ToolRegistry
	metrics      *metrics
	logger       *slog.Logger
	serverName   string
	instructions string

	mu          sync.Mutex
	initialized bool
	client      clientInfo
}

// dispatch handles one request. It returns nil for notifications.
func (d *dispatcher) dispatch(ctx context.Context, req *request) *response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.isNotification() {
		d.handleNotification(req)
		return nil
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (d *dispatcher) handleNotification(req *request) {
	switch req.Method {
	case "notifications/initialized":
		d.logger.Debug("client initialized", "client", d.client.Name, "client_version", d.client.Version)
	default:
		d.logger.Debug("ignoring notification", "method", req.Method)
	}
}

func (d *dispatcher) handleInitialize(req *request) *response {
	if d.initialized {
		return errorResponse(req.ID, codeInvalidRequest, "session is already initialized")
	}
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for initialize")
	}

	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	d.initialized = true
	d.client = params.ClientInfo
	d.logger.Info("protocol session initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"requested_protocol", params.ProtocolVersion,
	)

	return resultResponse(req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo:   serverInfo{Name: d.serverName, Version: serverVersion()},
		Instructions: d.instructions,
	})
}

func (d *dispatcher) handleToolsList(req *request) *response {
	descriptors := d.tools.List()
	descriptions := make([]toolDescription, 0, len(descriptors))
	for _, descriptor := range descriptors {
		descriptions = append(descriptions, toolDescription{
			Name:        descriptor.Name,
			Title:       descriptor.Title,
			Description: descriptor.Description,
			InputSchema: descriptor.InputSchema,
			Annotations: annotationsFor(descriptor),
		})
	}
	return resultResponse(req.ID, toolsListResult{Tools: descriptions})
}

func annotationsFor(descriptor tools.Descriptor) *toolAnnotations {
	return &toolAnnotations{
		ReadOnlyHint:    boolPtr(descriptor.ReadOnly),
		DestructiveHint: boolPtr(false),
		IdempotentHint:  boolPtr(descriptor.Idempotent),
		OpenWorldHint:   boolPtr(false),
	}
}

func boolPtr(value bool) *bool {
	return &value
}

func (d *dispatcher) handleToolsCall(ctx context.Context, req *request) *response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tools/call requires a tool name")
	}

	start := time.Now()
	output, err := d.tools.Call(ctx, params.Name, params.Arguments)
	elapsed := time.Since(start)

	var unknown *tools.UnknownToolError
	if errors.As(err, &unknown) {
		d.metrics.toolCall(params.Name, "unknown", elapsed)
		return errorResponse(req.ID, codeInvalidParams, unknown.Error())
	}

	result, err := buildToolResult(output, err)
	if err != nil {
		d.metrics.toolCall(params.Name, string(tools.CategoryInternal), elapsed)
		d.logger.Error("encoding tool result", "tool", params.Name, "error", err)
		return errorResponse(req.ID, codeInternalError, "encoding tool result failed")
	}

	outcome := outcomeOK
	if result.ErrorInfo != nil {
		outcome = result.ErrorInfo.Category
	}
	d.metrics.toolCall(params.Name, outcome, elapsed)
	return resultResponse(req.ID, result)
}

// buildToolResult turns a tool's return into a tools/call result. A
// failed call is still a result, with isError set and the category in
// errorInfo. A successful result is returned both as structured content
// and as its JSON text.
func buildToolResult(output any, callErr error) (toolsCallResult, error) {
	if callErr != nil {
		category := tools.CategoryOf(callErr)
		return toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: callErr.Error()}},
			IsError: true,
			ErrorInfo: &errorInfo{
				Category:  string(category),
				Retryable: category.Retryable(),
			},
		}, nil
	}

	text, err := json.Marshal(output)
	if err != nil {
		return toolsCallResult{}, fmt.Errorf("marshaling tool output: %w", err)
	}
	return toolsCallResult{
		Content:           []contentBlock{{Type: "text", Text: string(text)}},
		StructuredContent: output,
	}, nil
}
