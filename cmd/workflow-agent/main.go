// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// workflow-agent runs a conversational coding agent inside a GitHub
// Actions job triggered by an issue, pull request or comment.
//
// Each job is independent, but the agent's conversation history is
// restored from the artifact store before the run and persisted after a
// successful one, so the agent appears to remember earlier runs on the
// same issue or pull request. The agent never holds the repository
// token: it reaches the repository only through a closed set of tools
// served on a loopback MCP endpoint by this process.
//
// Configuration comes from an optional YAML file (--config or
// WORKFLOW_AGENT_CONFIG), the action's inputs (INPUT_* variables) and
// flags, in that order of precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sudden-network/workflow-agent/lib/config"
	"github.com/sudden-network/workflow-agent/lib/process"
	"github.com/sudden-network/workflow-agent/lib/version"
	"github.com/sudden-network/workflow-agent/lib/workflow"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// flagValues holds the command line. Only flags the user set override
// the loaded configuration.
type flagValues struct {
	configPath     string
	logLevel       string
	logFormat      string
	store          string
	storeDir       string
	model          string
	agentBinary    string
	timeoutMinutes int
	noResume       bool
	showVersion    bool
}

func newFlagSet(values *flagValues) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("workflow-agent", pflag.ContinueOnError)
	flagSet.StringVar(&values.configPath, "config", "", "YAML configuration file (default: $WORKFLOW_AGENT_CONFIG)")
	flagSet.StringVar(&values.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&values.logFormat, "log-format", "", "log format: auto, text, json")
	flagSet.StringVar(&values.store, "store", "", "session store backend: github, s3, dir")
	flagSet.StringVar(&values.storeDir, "store-dir", "", "root directory of the dir store backend")
	flagSet.StringVar(&values.model, "model", "", "agent model, optionally model/reasoning-effort")
	flagSet.StringVar(&values.agentBinary, "agent", "", "agent executable")
	flagSet.IntVar(&values.timeoutMinutes, "timeout-minutes", 0, "agent run timeout in minutes, 0 for none")
	flagSet.BoolVar(&values.noResume, "no-resume", false, "do not restore or persist the agent session")
	flagSet.BoolVar(&values.showVersion, "version", false, "print version information and exit")
	return flagSet
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(flagSet *pflag.FlagSet, values *flagValues, cfg *config.Config) {
	if flagSet.Changed("log-level") {
		cfg.Log.Level = values.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = values.logFormat
	}
	if flagSet.Changed("store") {
		cfg.Store.Backend = values.store
	}
	if flagSet.Changed("store-dir") {
		cfg.Store.Dir = values.storeDir
	}
	if flagSet.Changed("model") {
		cfg.Agent.Model = values.model
	}
	if flagSet.Changed("agent") {
		cfg.Agent.Binary = values.agentBinary
	}
	if flagSet.Changed("timeout-minutes") {
		cfg.Agent.TimeoutMinutes = values.timeoutMinutes
	}
	if flagSet.Changed("no-resume") {
		cfg.Session.Resume = !values.noResume
	}
}

// loadConfig parses args and layers defaults, file, inputs and flags.
// A nil config with a nil error means --version or --help was handled.
func loadConfig(args []string, getenv func(string) string) (*config.Config, error) {
	var values flagValues
	flagSet := newFlagSet(&values)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil
		}
		return nil, err
	}
	if values.showVersion {
		fmt.Printf("workflow-agent %s\n", version.Info())
		return nil, nil
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	path := values.configPath
	if path == "" {
		path = getenv("WORKFLOW_AGENT_CONFIG")
	}
	cfg, err := config.Load(path, getenv)
	if err != nil {
		return nil, err
	}
	applyFlags(flagSet, &values, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil || cfg == nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workflowRun, err := workflow.Load(os.Getenv)
	if err != nil {
		return fmt.Errorf("reading workflow context: %w", err)
	}

	agent, cleanup, err := newRunner(cfg, workflowRun, runnerOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer cleanup()

	return agent.run(ctx)
}
