// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentrun runs the agent subprocess. [Run] enforces a wall-clock
// timeout by killing the agent's whole process group, captures stdout and
// stderr up to a byte limit, and reports failures with the captured
// output attached. The Codex helpers in this package render the agent's
// configuration, perform its login and extract its final message.
package agentrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long Run waits for the output pipes to
// close after the process group has been killed.
const DefaultWaitDelay = 5 * time.Second

// TimeoutExitCode is the exit status reported for a timed-out run,
// matching timeout(1).
const TimeoutExitCode = 124

// Command describes the subprocess to start.
type Command struct {
	// Path is the executable, resolved through PATH when it contains
	// no slash.
	Path string
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env is the complete environment. A nil Env inherits the caller's
	// environment, which is almost never what an agent run wants; see
	// [AgentEnv].
	Env []string

	Stdin io.Reader
}

// Options controls limits and output routing for [Run].
type Options struct {
	// Timeout is the wall-clock limit for the run. Zero disables it.
	Timeout time.Duration

	// MaxOutputBytes caps each captured stream. Non-positive means
	// DefaultMaxOutputBytes.
	MaxOutputBytes int

	// GracePeriod, when positive, sends SIGTERM to the process group
	// on timeout and escalates to SIGKILL after the period. Zero kills
	// immediately.
	GracePeriod time.Duration

	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration

	// Stderr, if set, receives the subprocess's stderr as it is
	// produced, in addition to the capture.
	Stderr io.Writer

	Logger *slog.Logger
}

// Result is what a run produced, returned even when the run failed.
type Result struct {
	Stdout    string
	Stderr    string
	Truncated bool
	ExitCode  int
	Duration  time.Duration
}

// errTimedOut is the cancellation cause of Run's own deadline, used to
// tell a timeout apart from the caller cancelling ctx.
var errTimedOut = errors.New("agent run timed out")

// Run starts command and waits for it. On success it returns the
// captured output and a nil error. A non-zero exit returns
// *CommandError, an expired timeout returns *TimeoutError, and both
// carry the partial Result.
func Run(ctx context.Context, command Command, options Options) (*Result, error) {
	if command.Path == "" {
		return nil, errors.New("agentrun: command path is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	waitDelay := options.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, options.Timeout, errTimedOut)
		defer cancel()
	}

	stdout := NewCappedBuffer(options.MaxOutputBytes)
	stderr := NewCappedBuffer(options.MaxOutputBytes)

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	cmd.Stdin = command.Stdin
	cmd.Stdout = stdout
	if options.Stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, options.Stderr)
	} else {
		cmd.Stderr = stderr
	}

	// The agent spawns its own children (shells, MCP clients). They
	// share its process group, so killing the group on timeout leaves
	// nothing holding the output pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = killGroup(cmd, options.GracePeriod)
	cmd.WaitDelay = waitDelay

	logger.Info("starting agent",
		"command", command.Path,
		"args", formatArgs(command.Args),
		"timeout", options.Timeout,
	)
	start := time.Now()
	runErr := cmd.Run()

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(context.Cause(ctx), errTimedOut) {
		result.ExitCode = TimeoutExitCode
		logger.Warn("agent timed out",
			"timeout", options.Timeout,
			"duration", result.Duration,
			"truncated", result.Truncated,
		)
		return result, &TimeoutError{Timeout: options.Timeout, Result: result}
	}

	if runErr == nil {
		logger.Info("agent finished",
			"duration", result.Duration,
			"truncated", result.Truncated,
		)
		return result, nil
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("running %s: %w", command.Path, context.Cause(ctx))
	}

	var exitError *exec.ExitError
	if errors.As(runErr, &exitError) {
		logger.Warn("agent exited with failure",
			"exit_code", result.ExitCode,
			"duration", result.Duration,
		)
		return result, &CommandError{
			Command: command.Path,
			Args:    command.Args,
			Status:  result.ExitCode,
			Result:  result,
		}
	}
	return result, fmt.Errorf("running %s: %w", command.Path, runErr)
}

// killGroup returns the exec.Cmd Cancel function: SIGKILL the process
// group, or SIGTERM then SIGKILL after grace.
func killGroup(cmd *exec.Cmd, grace time.Duration) func() error {
	if grace <= 0 {
		return func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}
	return func() error {
		processGroupID := -cmd.Process.Pid
		if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
			return syscall.Kill(processGroupID, syscall.SIGKILL)
		}
		go func() {
			time.Sleep(grace)
			// ESRCH from an already exited group is harmless.
			_ = syscall.Kill(processGroupID, syscall.SIGKILL)
		}()
		return nil
	}
}

// TimeoutError reports a run killed by its timeout. ExitCode makes
// process.Fatal exit 124.
type TimeoutError struct {
	Timeout time.Duration
	Result  *Result
}

func (err *TimeoutError) Error() string {
	message := fmt.Sprintf("agent timed out after %s", err.Timeout)
	if err.Result != nil && err.Result.Truncated {
		message += " (output was also truncated due to size limit)"
	}
	return message
}

func (err *TimeoutError) ExitCode() int { return TimeoutExitCode }

// CommandError reports a subprocess that exited non-zero.
type CommandError struct {
	Command string
	Args    []string
	Status  int
	Result  *Result
}

// Error renders "Command failed: <command line>" followed by the trimmed
// stdout and stderr, or by the exit code when both are empty.
func (err *CommandError) Error() string {
	base := "Command failed: " + strings.Join(append([]string{err.Command}, formatArgs(err.Args)...), " ")

	var details []string
	if err.Result != nil {
		for _, stream := range []string{err.Result.Stdout, err.Result.Stderr} {
			if trimmed := strings.TrimSpace(stream); trimmed != "" {
				details = append(details, trimmed)
			}
		}
	}
	if len(details) == 0 {
		return fmt.Sprintf("%s (exit code %d)", base, err.Status)
	}
	return base + "\n\n" + strings.Join(details, "\n\n")
}

func (err *CommandError) ExitCode() int { return err.Status }

// maxDisplayedArg is the longest argument shown in error messages and
// logs; longer ones (prompts, config blobs) are omitted.
const maxDisplayedArg = 160

var whitespaceRun = regexp.MustCompile(`\s+`)

func formatArgs(args []string) []string {
	formatted := make([]string, len(args))
	for index, arg := range args {
		if strings.Contains(arg, "\n") {
			formatted[index] = "<omitted>"
			continue
		}
		normalized := strings.TrimSpace(whitespaceRun.ReplaceAllString(arg, " "))
		if len(normalized) > maxDisplayedArg {
			normalized = "<omitted>"
		}
		formatted[index] = normalized
	}
	return formatted
}
