// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package mcpbridge

import (
	"bytes"
	"encoding/json"
)

// protocolVersion is the MCP protocol version this bridge answers
// initialize with, whatever version the client asked for.
const protocolVersion = "2025-11-25"

// sessionHeader carries the session id on every request after
// initialize.
const sessionHeader = "Mcp-Session-Id"

// JSON-RPC 2.0 error codes. codeNoSession is in the implementation
// defined server error range.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeNoSession      = -32000
)

// request is a JSON-RPC 2.0 request or notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request has no id and so expects
// no response. An explicit "id": null is not a notification.
func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

// responseID is the id to echo: the request's, or null.
func (r *request) responseID() json.RawMessage {
	if r == nil || len(r.ID) == 0 {
		return json.RawMessage("null")
	}
	return r.ID
}

// response is a JSON-RPC 2.0 response. Exactly one of Result or Error
// is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func resultResponse(id json.RawMessage, result any) *response {
	return &response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return &response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// parseRequest decodes one POST body. The returned response is non-nil
// when the body is not a usable request: -32700 for malformed JSON,
// -32600 for JSON that is not a single request object.
func parseRequest(body []byte) (*request, *response) {
	if !json.Valid(body) {
		return nil, errorResponse(nil, codeParseError, "parse error: body is not valid JSON")
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errorResponse(nil, codeInvalidRequest, "invalid request: expected a single JSON-RPC request object")
	}

	var req request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, errorResponse(nil, codeInvalidRequest, "invalid request: "+err.Error())
	}
	if req.JSONRPC != "2.0" {
		return &req, errorResponse(req.ID, codeInvalidRequest, "invalid request: unsupported JSON-RPC version")
	}
	if req.Method == "" {
		return &req, errorResponse(req.ID, codeInvalidRequest, "invalid request: method is required")
	}
	return &req, nil
}

// --- MCP protocol types ---

type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

type serverCapabilities struct {
	Tools *toolCapability `json:"tools,omitempty"`
}

// toolCapability is present when the server has tools. The tool set is
// closed, so listChanged is always false.
type toolCapability struct {
	ListChanged bool `json:"listChanged"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsListResult struct {
	Tools []toolDescription `json:"tools"`
}

type toolDescription struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description"`
	InputSchema json.RawMessage  `json:"inputSchema"`
	Annotations *toolAnnotations `json:"annotations,omitempty"`
}

// toolAnnotations are behavioral hints. Every tool acts on one
// repository, so openWorld is false throughout.
type toolAnnotations struct {
	ReadOnlyHint    *bool `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool `json:"openWorldHint,omitempty"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolsCallResult answers tools/call. ErrorInfo is an extension: clients
// that do not know it ignore it, agents that do use it to decide whether
// to retry, fix their input, or give up.
type toolsCallResult struct {
	Content           []contentBlock `json:"content"`
	StructuredContent any            `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
	ErrorInfo         *errorInfo     `json:"errorInfo,omitempty"`
}

type errorInfo struct {
	// Category is one of validation, not_found, forbidden, conflict,
	// transient, internal.
	Category string `json:"category"`

	Retryable bool `json:"retryable"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
