// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcpbridge is the loopback Model Context Protocol endpoint the
// agent subprocess uses to reach repository tools.
//
// The agent never holds the repository credential. Instead the binary
// starts a [Server] on an ephemeral 127.0.0.1 port, writes its [Server.URL]
// (which carries a random access token) into the agent's configuration,
// and every tool call the agent makes arrives here as JSON-RPC 2.0 over
// the MCP streamable-HTTP transport:
//
//   - POST carries one request or notification. A request without a
//     Mcp-Session-Id header must be initialize, which allocates a
//     session; every other request names an existing session.
//   - GET opens an event stream for a session. The bridge never sends
//     server-initiated messages, so the stream carries only keepalive
//     comments until the session ends.
//   - DELETE ends a session.
//
// Requests within one session are answered in order. Tool failures are
// returned as tool results with isError set and a machine-readable
// errorInfo category, never as protocol errors, so the agent can react
// to them.
package mcpbridge
