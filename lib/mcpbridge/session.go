// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package mcpbridge

import (
	"sync"
	"sync/atomic"
	"time"
)

// session is one client's protocol session. done is closed exactly
// once, when the session is deleted or the server stops.
type session struct {
	id         string
	createdAt  time.Time
	dispatcher *dispatcher

	streaming atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// newSession builds an unregistered session with its own dispatcher.
func (server *Server) newSession() *session {
	id := newID()
	return &session{
		id:        id,
		createdAt: server.clock.Now(),
		dispatcher: &dispatcher{
			tools:        server.tools,
			metrics:      server.metrics,
			logger:       server.logger.With("session", id),
			serverName:   server.serverName,
			instructions: server.instructions,
		},
		done: make(chan struct{}),
	}
}

// register adds a session. It refuses once Stop has begun.
func (server *Server) register(current *session) bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.stopped {
		return false
	}
	server.sessions[current.id] = current
	server.metrics.sessionOpened()
	return true
}

func (server *Server) lookup(id string) *session {
	if id == "" {
		return nil
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.sessions[id]
}

// unregister removes and returns a session, or nil if id is unknown.
func (server *Server) unregister(id string) *session {
	if id == "" {
		return nil
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	current, ok := server.sessions[id]
	if !ok {
		return nil
	}
	delete(server.sessions, id)
	return current
}

// closeSession ends an unregistered session's event stream. Repeated
// calls do nothing.
func (server *Server) closeSession(current *session, reason string) {
	current.closeOnce.Do(func() {
		close(current.done)
		server.metrics.sessionClosed()
		server.logger.Info("protocol session closed",
			"session", current.id,
			"reason", reason,
			"age", server.clock.Now().Sub(current.createdAt),
		)
	})
}
