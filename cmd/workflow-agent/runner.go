// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sudden-network/workflow-agent/lib/agentrun"
	"github.com/sudden-network/workflow-agent/lib/config"
	"github.com/sudden-network/workflow-agent/lib/github"
	"github.com/sudden-network/workflow-agent/lib/mcpbridge"
	"github.com/sudden-network/workflow-agent/lib/secret"
	"github.com/sudden-network/workflow-agent/lib/session"
	"github.com/sudden-network/workflow-agent/lib/tools"
	"github.com/sudden-network/workflow-agent/lib/version"
	"github.com/sudden-network/workflow-agent/lib/workflow"
)

const (
	// agentGracePeriod is how long the agent gets to exit after SIGTERM
	// when its timeout expires.
	agentGracePeriod = 10 * time.Second

	// reportTimeout bounds the failure comment, which is posted even
	// after the run's context was cancelled.
	reportTimeout = 30 * time.Second

	bridgeStopTimeout = 5 * time.Second

	// timeoutTailBytes is how much of a timed-out agent's output is
	// logged.
	timeoutTailBytes = 4 << 10

	bridgeInstructions = "Tools for acting on the GitHub repository this workflow run belongs to. " +
		"Comments, issues, branches, files and pull requests are created with the workflow's permissions."
)

// runnerOptions are the process surroundings of a run. Zero values mean
// the real process environment.
type runnerOptions struct {
	Getenv     func(string) string
	Environ    []string
	Stderr     io.Writer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// runner carries one workflow run from trigger to persisted session.
type runner struct {
	config   *config.Config
	workflow *workflow.Context
	client   *github.Client
	codex    *agentrun.Codex
	getenv   func(string) string

	// agentTimeout bounds the agent invocation. Zero means none.
	agentTimeout time.Duration

	stderr io.Writer
	logger *slog.Logger
}

// newRunner builds the repository client and agent driver for run. The
// returned cleanup releases the token's locked memory.
func newRunner(cfg *config.Config, run *workflow.Context, options runnerOptions) (*runner, func(), error) {
	if options.Getenv == nil {
		options.Getenv = os.Getenv
	}
	if options.Environ == nil {
		options.Environ = os.Environ()
	}
	if options.Stderr == nil {
		options.Stderr = os.Stderr
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.With("repository", run.Owner+"/"+run.Repo, "run_id", run.RunID)

	credential, err := secret.NewFromString(cfg.GitHub.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("protecting repository token: %w", err)
	}
	client, err := github.NewClient(github.Config{
		BaseURL:    cfg.GitHub.APIURL,
		Credential: credential,
		HTTPClient: options.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		credential.Close()
		return nil, nil, fmt.Errorf("creating GitHub client: %w", err)
	}

	agent := &runner{
		config:   cfg,
		workflow: run,
		client:   client,
		codex: &agentrun.Codex{
			Binary: cfg.Agent.Binary,
			Home:   cfg.Agent.Home,
			Env:    agentrun.AgentEnv(options.Environ),
			Logger: logger,
		},
		getenv:       options.Getenv,
		agentTimeout: cfg.Timeout(),
		stderr:       options.Stderr,
		logger:       logger,
	}
	return agent, func() { credential.Close() }, nil
}

// run executes the whole flow. Any error on a run attached to an issue
// or pull request is also reported there as a comment.
func (agent *runner) run(ctx context.Context) (err error) {
	key, hasSubject := agent.workflow.Subject()
	if hasSubject {
		defer func() {
			if err != nil {
				agent.reportFailure(ctx, key)
			}
		}()
	}

	agent.logger.Info("workflow-agent starting",
		"version", version.Short(),
		"event", agent.workflow.EventName,
		"action", agent.workflow.Event.Action,
		"actor", agent.workflow.Actor,
	)

	stale, err := workflow.IsStale(ctx, agent.client, agent.workflow)
	if err != nil {
		return fmt.Errorf("checking for stale event: %w", err)
	}
	if stale {
		agent.logger.Info("skipping stale edit event, content has changed since it was sent")
		return nil
	}

	agent.acknowledge(ctx)

	if err := workflow.EnsureWriteAccess(ctx, agent.client, agent.workflow, agent.config.Access.TrustedActors); err != nil {
		return err
	}
	trusted, err := workflow.TrustedCollaborators(ctx, agent.client, agent.workflow)
	if err != nil {
		return err
	}

	auth, err := agentrun.ResolveAuth(agent.config.Agent.APIKey, agent.config.Agent.AuthFile)
	if err != nil {
		return err
	}
	tokenActor, err := agent.config.ResolveTokenActor()
	if err != nil {
		return err
	}

	var manager *session.Manager
	resumed := false
	if agent.config.Session.Resume && hasSubject {
		manager, err = agent.sessionManager(ctx)
		if err != nil {
			return err
		}
		resumed, err = manager.Restore(ctx, key)
		if err != nil {
			return fmt.Errorf("restoring session %s: %w", key, err)
		}
	}

	prompt, err := agent.renderPrompt(resumed, trusted, tokenActor)
	if err != nil {
		return err
	}

	result, runErr := agent.runAgent(ctx, key, auth, prompt)
	if cleanupErr := agent.codex.Cleanup(); cleanupErr != nil {
		agent.logger.Warn("removing agent credentials failed", "error", cleanupErr)
	}
	if runErr != nil {
		var timeoutErr *agentrun.TimeoutError
		if errors.As(runErr, &timeoutErr) && timeoutErr.Result != nil {
			agent.publishPartial(timeoutErr)
		}
		return runErr
	}

	agent.publish(result)

	if manager != nil {
		snapshot, err := manager.Persist(ctx, key)
		if err != nil {
			return fmt.Errorf("persisting session %s: %w", key, err)
		}
		agent.logger.Info("session persisted", "session", key.String(), "artifact", snapshot.Name, "size", snapshot.Size)
	}
	return nil
}

// acknowledge reacts to the trigger so the actor sees the run started.
// Failure only costs the reaction.
func (agent *runner) acknowledge(ctx context.Context) {
	target, id, ok := agent.workflow.TriggerReaction()
	if !ok {
		return
	}
	_, err := agent.client.CreateReaction(ctx, agent.workflow.Owner, agent.workflow.Repo, target, id, github.ReactionEyes)
	if err != nil {
		agent.logger.Warn("adding reaction failed", "error", err)
	}
}

func (agent *runner) sessionManager(ctx context.Context) (*session.Manager, error) {
	tempDir := agent.getenv("RUNNER_TEMP")
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	store, err := openStore(ctx, agent.config.Store, storeOptions{
		client:  agent.client,
		run:     agent.workflow,
		getenv:  agent.getenv,
		tempDir: tempDir,
		logger:  agent.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s session store: %w", agent.config.Store.Backend, err)
	}
	return session.NewManager(session.Config{
		Store:          store,
		StateDir:       agent.codex.SessionsDir(),
		ArtifactPrefix: agent.config.Session.ArtifactPrefix,
		Retention:      agent.config.Retention(),
		StripPaths:     agent.config.Session.StripPaths,
		TempDir:        tempDir,
		Logger:         agent.logger,
	})
}

func (agent *runner) renderPrompt(resumed bool, trusted []string, tokenActor string) (string, error) {
	var template string
	if path := agent.config.Agent.PromptTemplate; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading prompt template: %w", err)
		}
		template = string(data)
	}
	return workflow.RenderPrompt(template, agent.workflow.Summarize(resumed, trusted, tokenActor), agent.config.Agent.Prompt)
}

// runAgent serves the tool bridge for the lifetime of one agent
// invocation.
func (agent *runner) runAgent(ctx context.Context, key session.Key, auth agentrun.Auth, prompt string) (*agentrun.Result, error) {
	registry, err := tools.NewRegistry(agent.client, tools.Subject{
		Owner:  agent.workflow.Owner,
		Repo:   agent.workflow.Repo,
		Number: key.Number,
	}, agent.logger)
	if err != nil {
		return nil, err
	}
	bridge, err := mcpbridge.NewServer(mcpbridge.Config{
		Tools:        registry,
		Host:         agent.config.Bridge.Host,
		Path:         agent.config.Bridge.Path,
		Instructions: bridgeInstructions,
		Logger:       agent.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting tool bridge: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bridgeStopTimeout)
		defer cancel()
		if err := bridge.Stop(stopCtx); err != nil {
			agent.logger.Warn("stopping tool bridge failed", "error", err)
		}
	}()

	if err := agent.codex.WriteConfig([]agentrun.MCPServer{{Name: "github", URL: bridge.URL()}}); err != nil {
		return nil, err
	}
	if err := agent.codex.Login(ctx, auth); err != nil {
		return nil, err
	}

	return agent.codex.Exec(ctx, prompt, agentrun.ParseModel(agent.config.Agent.Model), agentrun.Options{
		Timeout:        agent.agentTimeout,
		MaxOutputBytes: agent.config.Agent.MaxOutputBytes,
		GracePeriod:    agentGracePeriod,
		Stderr:         agent.stderr,
		Logger:         agent.logger,
	})
}

// publish logs the agent's final message and adds it to the job summary.
func (agent *runner) publish(result *agentrun.Result) {
	message, err := agentrun.FinalMessage(result.Stdout)
	if err != nil {
		agent.logger.Warn("reading agent output failed", "error", err)
		return
	}
	if message == "" {
		agent.logger.Info("agent finished without a final message")
		return
	}
	agent.logger.Info("agent final message", "message", message)

	path := agent.getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return
	}
	if err := appendStepSummary(path, message); err != nil {
		agent.logger.Warn("writing job summary failed", "error", err)
	}
}

// publishPartial surfaces what a timed-out agent printed before it was
// killed. A line cut off by the kill is dropped.
func (agent *runner) publishPartial(timeoutErr *agentrun.TimeoutError) {
	result := *timeoutErr.Result
	agent.logger.Warn("agent timed out",
		"timeout", timeoutErr.Timeout,
		"truncated", result.Truncated,
		"stdout_tail", tail(result.Stdout, timeoutTailBytes),
	)
	if !result.Truncated {
		result.Stdout = result.Stdout[:strings.LastIndexByte(result.Stdout, '\n')+1]
	}
	agent.publish(&result)
}

// tail returns at most limit bytes from the end of text.
func tail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return strings.ToValidUTF8(text[len(text)-limit:], "")
}

func appendStepSummary(path, message string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := file.WriteString("### workflow-agent\n\n" + strings.TrimSpace(message) + "\n")
	return errors.Join(writeErr, file.Close())
}

// reportFailure comments on the subject with a link to the run's log.
func (agent *runner) reportFailure(ctx context.Context, key session.Key) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	body := "workflow-agent failed, see workflow run: " + agent.workflow.RunURL()
	_, err := agent.client.CreateIssueComment(ctx, agent.workflow.Owner, agent.workflow.Repo, key.Number, body)
	switch {
	case err == nil:
	case github.IsForbidden(err):
		agent.logger.Warn("cannot post failure comment, grant the workflow issues: write permission", "error", err)
	default:
		agent.logger.Warn("posting failure comment failed", "error", err)
	}
}
