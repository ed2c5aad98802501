// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultBinary is the agent executable looked up on PATH.
	DefaultBinary = "codex"

	configFileName = "config.toml"
	authFileName   = "auth.json"
	sessionsDir    = "sessions"
	scratchDir     = "tmp"

	loginTimeout = 2 * time.Minute
)

// MCPServer is one entry of the agent's mcp_servers table.
type MCPServer struct {
	Name string
	URL  string
}

// RenderConfig renders the agent's config.toml: one [mcp_servers.<name>]
// table per server, separated by a blank line.
func RenderConfig(servers []MCPServer) string {
	tables := make([]string, 0, len(servers))
	for _, server := range servers {
		tables = append(tables, fmt.Sprintf("[mcp_servers.%s]\nurl = %q", server.Name, server.URL))
	}
	return strings.Join(tables, "\n\n")
}

// ModelSelection is a model name and optional reasoning effort.
type ModelSelection struct {
	Model           string
	ReasoningEffort string
}

// ParseModel splits "model/effort" on the first slash. Either part may be
// empty: "gpt-5" selects only a model, "/high" only an effort.
func ParseModel(value string) ModelSelection {
	model, effort, _ := strings.Cut(value, "/")
	if index := strings.Index(effort, "/"); index >= 0 {
		effort = effort[:index]
	}
	return ModelSelection{
		Model:           strings.TrimSpace(model),
		ReasoningEffort: strings.TrimSpace(effort),
	}
}

// ExecArgs returns the arguments for a non-interactive agent turn that
// reads its prompt from stdin, continues the most recent session if one
// exists, and prints JSONL events on stdout.
func ExecArgs(selection ModelSelection) []string {
	args := []string{"exec", "--json", "--sandbox=read-only"}
	if selection.Model != "" {
		args = append(args, "--model="+selection.Model)
	}
	if selection.ReasoningEffort != "" {
		args = append(args, "--config=model_reasoning_effort="+selection.ReasoningEffort)
	}
	return append(args, "-", "resume", "--last", "--skip-git-repo-check")
}

// Auth is how the agent authenticates to its model provider. Exactly
// one field is set.
type Auth struct {
	APIKey   string
	AuthFile string
}

// ResolveAuth picks the authentication strategy from the two configured
// values. Setting both, or neither, is an error.
func ResolveAuth(apiKey, authFile string) (Auth, error) {
	apiKey = strings.TrimSpace(apiKey)
	authFile = strings.TrimSpace(authFile)
	switch {
	case apiKey != "" && authFile != "":
		return Auth{}, errors.New("set only one: agent_api_key or agent_auth_file")
	case authFile != "":
		return Auth{AuthFile: authFile}, nil
	case apiKey != "":
		return Auth{APIKey: apiKey}, nil
	default:
		return Auth{}, errors.New("missing auth: set agent_api_key or agent_auth_file")
	}
}

// Codex drives the Codex CLI inside one CODEX_HOME.
type Codex struct {
	// Binary defaults to DefaultBinary.
	Binary string

	// Home is the CODEX_HOME directory holding config, credentials and
	// the sessions directory.
	Home string

	// Env is the base environment for every subprocess; CODEX_HOME is
	// appended. Build it with AgentEnv.
	Env []string

	Logger *slog.Logger
}

func (codex *Codex) binary() string {
	if codex.Binary == "" {
		return DefaultBinary
	}
	return codex.Binary
}

func (codex *Codex) logger() *slog.Logger {
	if codex.Logger == nil {
		return slog.Default()
	}
	return codex.Logger
}

func (codex *Codex) environment() []string {
	env := make([]string, 0, len(codex.Env)+1)
	env = append(env, codex.Env...)
	return append(env, "CODEX_HOME="+codex.Home)
}

// SessionsDir is the directory the agent keeps its conversation history
// in. It is the state directory restored and persisted across runs.
func (codex *Codex) SessionsDir() string {
	return filepath.Join(codex.Home, sessionsDir)
}

// WriteConfig writes config.toml into Home.
func (codex *Codex) WriteConfig(servers []MCPServer) error {
	if err := os.MkdirAll(codex.Home, 0o700); err != nil {
		return fmt.Errorf("creating agent home: %w", err)
	}
	path := filepath.Join(codex.Home, configFileName)
	if err := os.WriteFile(path, []byte(RenderConfig(servers)), 0o600); err != nil {
		return fmt.Errorf("writing agent config: %w", err)
	}
	return nil
}

// Login installs credentials. An auth file's contents are written to
// Home/auth.json; an API key is passed to "codex login --with-api-key"
// on stdin so it never appears in an argument list.
func (codex *Codex) Login(ctx context.Context, auth Auth) error {
	if err := os.MkdirAll(codex.Home, 0o700); err != nil {
		return fmt.Errorf("creating agent home: %w", err)
	}
	if auth.AuthFile != "" {
		path := filepath.Join(codex.Home, authFileName)
		if err := os.WriteFile(path, []byte(auth.AuthFile), 0o600); err != nil {
			return fmt.Errorf("writing agent auth file: %w", err)
		}
		codex.logger().Info("installed agent auth file")
		return nil
	}
	if auth.APIKey == "" {
		return errors.New("agent login: no credentials")
	}

	_, err := Run(ctx, Command{
		Path:  codex.binary(),
		Args:  []string{"login", "--with-api-key"},
		Env:   codex.environment(),
		Stdin: strings.NewReader(auth.APIKey),
	}, Options{Timeout: loginTimeout, Logger: codex.logger()})
	if err != nil {
		return fmt.Errorf("agent login: %w", err)
	}
	return nil
}

// Exec runs one agent turn with prompt on stdin.
func (codex *Codex) Exec(ctx context.Context, prompt string, selection ModelSelection, options Options) (*Result, error) {
	if options.Logger == nil {
		options.Logger = codex.logger()
	}
	return Run(ctx, Command{
		Path:  codex.binary(),
		Args:  ExecArgs(selection),
		Env:   codex.environment(),
		Stdin: strings.NewReader(prompt),
	}, options)
}

// Cleanup removes credentials and scratch files from Home so they are
// never persisted with the session state.
func (codex *Codex) Cleanup() error {
	var errs []error
	for _, name := range []string{authFileName, scratchDir} {
		if err := os.RemoveAll(filepath.Join(codex.Home, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FinalMessage returns the text of the last completed agent_message in
// the agent's JSONL event stream, or "" if there is none. Blank lines are
// skipped and any other line that is not JSON is an error. When events
// ends in a truncation marker, the marker and the possibly cut-off line
// before it are ignored.
func FinalMessage(events string) (string, error) {
	type item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type event struct {
		Type string `json:"type"`
		Item *item  `json:"item"`
	}

	truncated := false
	if index := strings.Index(events, "\n\n[Output truncated at "); index >= 0 {
		events = events[:index]
		truncated = true
	}
	lines := strings.Split(events, "\n")

	var message string
	for index, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var current event
		if err := json.Unmarshal([]byte(line), &current); err != nil {
			if truncated && index == len(lines)-1 {
				break
			}
			return "", fmt.Errorf("parsing agent event on line %d: %w", index+1, err)
		}
		if current.Type == "item.completed" && current.Item != nil && current.Item.Type == "agent_message" {
			message = current.Item.Text
		}
	}
	return message, nil
}
