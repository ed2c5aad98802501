// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sudden-network/workflow-agent/lib/clock"
	"github.com/sudden-network/workflow-agent/lib/netutil"
	"github.com/sudden-network/workflow-agent/lib/secret"
	"github.com/sudden-network/workflow-agent/lib/tools"
	"github.com/sudden-network/workflow-agent/lib/version"
)

// MaxRequestBytes bounds a POST body.
const MaxRequestBytes = 4 << 20

// accessTokenBytes is the entropy of a generated access token.
const accessTokenBytes = 32

const (
	// DefaultPath is the single endpoint path.
	DefaultPath = "/mcp"

	// DefaultHost is the listen host.
	DefaultHost = "127.0.0.1"

	// DefaultKeepalive is the interval between comment lines on an
	// open event stream.
	DefaultKeepalive = 15 * time.Second

	// DefaultServerName is reported as serverInfo.name.
	DefaultServerName = "workflow-agent"
)

// ToolRegistry is the closed tool set the bridge exposes.
// *tools.Registry implements it.
type ToolRegistry interface {
	List() []tools.Descriptor
	Call(ctx context.Context, name string, arguments json.RawMessage) (any, error)
}

var _ ToolRegistry = (*tools.Registry)(nil)

// Config configures a [Server].
type Config struct {
	// Tools is the registry every session dispatches to. Required.
	Tools ToolRegistry

	// Host is the loopback host to bind. Defaults to DefaultHost. A
	// non-loopback host makes Start fail.
	Host string

	// Path is the endpoint path. Defaults to DefaultPath.
	Path string

	// Token is the access token clients must present in the "token"
	// query parameter. When nil, Start generates a random token. The
	// Server closes a token it generated; a caller-supplied token stays
	// the caller's to close.
	Token *secret.Buffer

	// ServerName is reported in initialize. Defaults to
	// DefaultServerName.
	ServerName string

	// Instructions is optional text returned in initialize.
	Instructions string

	// Keepalive is the event stream comment interval. Defaults to
	// DefaultKeepalive.
	Keepalive time.Duration

	// Clock drives keepalives. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the loopback protocol bridge: an MCP streamable-HTTP
// endpoint through which the agent subprocess calls the tool registry.
//
// Sessions are created by initialize and live until DELETE or Stop. The
// registry of sessions is owned by the Server; every session has its own
// dispatcher.
type Server struct {
	tools        ToolRegistry
	host         string
	path         string
	serverName   string
	instructions string
	keepalive    time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *metrics

	token      *secret.Buffer
	ownsToken  bool
	listener   net.Listener
	httpServer *http.Server
	serveDone  chan struct{}

	mu       sync.Mutex
	sessions map[string]*session
	started  bool
	stopped  bool
}

// NewServer validates the configuration. Nothing listens until Start.
func NewServer(config Config) (*Server, error) {
	if config.Tools == nil {
		return nil, fmt.Errorf("bridge server requires a tool registry")
	}

	host := config.Host
	if host == "" {
		host = DefaultHost
	}
	path := config.Path
	if path == "" {
		path = DefaultPath
	}
	if path[0] != '/' {
		return nil, fmt.Errorf("bridge path %q must start with /", path)
	}
	serverName := config.ServerName
	if serverName == "" {
		serverName = DefaultServerName
	}
	keepalive := config.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		tools:        config.Tools,
		host:         host,
		path:         path,
		serverName:   serverName,
		instructions: config.Instructions,
		keepalive:    keepalive,
		clock:        clk,
		logger:       logger,
		metrics:      newMetrics(),
		token:        config.Token,
		sessions:     make(map[string]*session),
	}, nil
}

// Start binds an ephemeral loopback port and serves in the background.
// It fails for a non-loopback host.
func (server *Server) Start(ctx context.Context) error {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.started {
		return fmt.Errorf("bridge server already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if server.token == nil {
		token, err := secret.RandomToken(accessTokenBytes)
		if err != nil {
			return fmt.Errorf("generating bridge access token: %w", err)
		}
		server.token = token
		server.ownsToken = true
	}

	listener, err := netutil.ListenLoopback(server.host)
	if err != nil {
		if server.ownsToken {
			server.token.Close()
			server.token = nil
			server.ownsToken = false
		}
		return fmt.Errorf("starting bridge server: %w", err)
	}

	server.listener = listener
	server.httpServer = &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(server.logger.Handler(), slog.LevelWarn),
	}
	server.serveDone = make(chan struct{})
	server.started = true

	go func() {
		defer close(server.serveDone)
		if err := server.httpServer.Serve(listener); err != nil && !netutil.IsExpectedCloseError(err) {
			server.logger.Error("bridge server stopped unexpectedly", "error", err)
		}
	}()

	server.logger.Info("bridge server started",
		"address", listener.Addr().String(),
		"path", server.path,
	)
	return nil
}

// URL returns the endpoint URL including the access token, or "" when
// the server is not running. It is the only way a client learns the
// token.
func (server *Server) URL() string {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.listener == nil || server.token == nil || server.stopped {
		return ""
	}
	endpoint := url.URL{
		Scheme:   "http",
		Host:     server.listener.Addr().String(),
		Path:     server.path,
		RawQuery: url.Values{"token": {server.token.String()}}.Encode(),
	}
	return endpoint.String()
}

// SessionCount returns the number of open sessions.
func (server *Server) SessionCount() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return len(server.sessions)
}

// Gatherer exposes the server's private metrics registry.
func (server *Server) Gatherer() prometheus.Gatherer {
	return server.metrics.registry
}

// Stop closes every session, which ends their event streams, then shuts
// the HTTP server down gracefully within ctx. In-flight tool calls run
// to completion unless ctx expires first. Stop is safe to call more
// than once.
func (server *Server) Stop(ctx context.Context) error {
	server.mu.Lock()
	if !server.started || server.stopped {
		server.mu.Unlock()
		return nil
	}
	server.stopped = true
	sessions := make([]*session, 0, len(server.sessions))
	for id, current := range server.sessions {
		sessions = append(sessions, current)
		delete(server.sessions, id)
	}
	server.mu.Unlock()

	for _, current := range sessions {
		server.closeSession(current, "server stopping")
	}

	shutdownErr := server.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		server.httpServer.Close()
	}
	<-server.serveDone

	if server.ownsToken {
		server.token.Close()
	}

	totals := server.metrics.summarize()
	server.logger.Info("bridge server stopped",
		"sessions", totals.sessions,
		"requests", totals.requests,
		"tool_calls", totals.toolCalls,
		"tool_errors", totals.toolErrors,
	)

	if shutdownErr != nil {
		return fmt.Errorf("shutting down bridge server: %w", shutdownErr)
	}
	return nil
}

// ServeHTTP routes one request: path, then token, then method.
func (server *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	recorder := &statusRecorder{ResponseWriter: writer}
	defer func() {
		server.metrics.request(request.Method, recorder.code())
	}()
	defer server.recoverPanic(recorder, request)

	if request.URL.Path != server.path {
		http.NotFound(recorder, request)
		return
	}
	if !server.authorized(request) {
		http.Error(recorder, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch request.Method {
	case http.MethodPost:
		server.handlePost(recorder, request)
	case http.MethodGet:
		server.handleStream(recorder, request)
	case http.MethodDelete:
		server.handleDelete(recorder, request)
	default:
		recorder.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(recorder, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (server *Server) authorized(request *http.Request) bool {
	token := request.URL.Query().Get("token")
	if token == "" {
		return false
	}
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.token == nil || server.stopped {
		return false
	}
	return server.token.Equal([]byte(token))
}

// recoverPanic answers a panicking request with a JSON-RPC internal
// error if nothing has been written yet, and aborts the connection
// otherwise.
func (server *Server) recoverPanic(recorder *statusRecorder, request *http.Request) {
	recovered := recover()
	if recovered == nil {
		return
	}
	if recovered == http.ErrAbortHandler {
		panic(recovered)
	}

	server.logger.Error("panic while serving bridge request",
		"method", request.Method,
		"panic", fmt.Sprint(recovered),
	)
	if recorder.wroteHeader {
		panic(http.ErrAbortHandler)
	}
	writeJSON(recorder, http.StatusOK, errorResponse(nil, codeInternalError, "internal error"))
}

func (server *Server) handlePost(writer http.ResponseWriter, request *http.Request) {
	body, err := netutil.ReadLimited(request.Body, MaxRequestBytes)
	if err != nil {
		if errors.Is(err, netutil.ErrBodyTooLarge) {
			// Drain a bounded remainder so the client reads the answer
			// instead of a reset.
			io.Copy(io.Discard, io.LimitReader(request.Body, MaxRequestBytes))
			writeJSON(writer, http.StatusRequestEntityTooLarge,
				errorResponse(nil, codeInvalidRequest, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBytes)))
			return
		}
		server.logger.Debug("reading bridge request body", "error", err)
		http.Error(writer, "reading request body failed", http.StatusBadRequest)
		return
	}

	req, parseError := parseRequest(body)
	if parseError != nil {
		writeJSON(writer, http.StatusOK, parseError)
		return
	}

	sessionID := request.Header.Get(sessionHeader)
	if sessionID == "" {
		if req.Method != "initialize" || req.isNotification() {
			writeJSON(writer, http.StatusBadRequest, errorResponse(req.responseID(), codeNoSession, "bad request: no valid session ID provided"))
			return
		}
		server.initializeSession(writer, request, req)
		return
	}

	current := server.lookup(sessionID)
	if current == nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse(req.responseID(), codeNoSession, "bad request: no valid session ID provided"))
		return
	}

	resp := current.dispatcher.dispatch(request.Context(), req)
	if resp == nil {
		writer.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(writer, http.StatusOK, resp)
}

// initializeSession dispatches an initialize request on a fresh session
// and registers the session only if initialize succeeded.
func (server *Server) initializeSession(writer http.ResponseWriter, request *http.Request, req *request) {
	current := server.newSession()
	resp := current.dispatcher.dispatch(request.Context(), req)
	if resp.Error != nil {
		writeJSON(writer, http.StatusOK, resp)
		return
	}

	if !server.register(current) {
		writeJSON(writer, http.StatusServiceUnavailable, errorResponse(req.ID, codeInternalError, "bridge server is stopping"))
		return
	}
	writer.Header().Set(sessionHeader, current.id)
	writeJSON(writer, http.StatusOK, resp)
}

func (server *Server) handleStream(writer http.ResponseWriter, request *http.Request) {
	current := server.lookup(request.Header.Get(sessionHeader))
	if current == nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse(nil, codeNoSession, "bad request: no valid session ID provided"))
		return
	}
	if !current.streaming.CompareAndSwap(false, true) {
		http.Error(writer, "an event stream is already open for this session", http.StatusConflict)
		return
	}
	defer current.streaming.Store(false)

	controller := http.NewResponseController(writer)
	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set(sessionHeader, current.id)
	writer.WriteHeader(http.StatusOK)
	if err := controller.Flush(); err != nil {
		server.logger.Debug("flushing event stream", "session", current.id, "error", err)
		return
	}

	ticker := server.clock.NewTicker(server.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-request.Context().Done():
			return
		case <-current.done:
			return
		case <-ticker.C:
			if _, err := writer.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			if err := controller.Flush(); err != nil {
				return
			}
		}
	}
}

func (server *Server) handleDelete(writer http.ResponseWriter, request *http.Request) {
	sessionID := request.Header.Get(sessionHeader)
	current := server.unregister(sessionID)
	if current == nil {
		writeJSON(writer, http.StatusBadRequest, errorResponse(nil, codeNoSession, "bad request: no valid session ID provided"))
		return
	}
	server.closeSession(current, "client requested")
	writer.WriteHeader(http.StatusOK)
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		data = []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
		status = http.StatusInternalServerError
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	writer.Write(data)
}

func serverVersion() string {
	return version.Short()
}

// statusRecorder remembers whether and with what status the response
// was started.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (recorder *statusRecorder) WriteHeader(status int) {
	if !recorder.wroteHeader {
		recorder.status = status
		recorder.wroteHeader = true
	}
	recorder.ResponseWriter.WriteHeader(status)
}

func (recorder *statusRecorder) Write(data []byte) (int, error) {
	if !recorder.wroteHeader {
		recorder.WriteHeader(http.StatusOK)
	}
	return recorder.ResponseWriter.Write(data)
}

// Unwrap lets http.ResponseController reach the underlying writer's
// Flush.
func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

func (recorder *statusRecorder) code() int {
	if !recorder.wroteHeader {
		return http.StatusOK
	}
	return recorder.status
}

// newID returns a fresh session id.
func newID() string {
	return uuid.NewString()
}
