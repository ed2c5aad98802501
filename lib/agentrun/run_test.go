// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sudden-network/workflow-agent/lib/process"
)

func quietOptions() Options {
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func shell(script string) Command {
	return Command{Path: "sh", Args: []string{"-c", script}}
}

func TestRunCapturesBothStreams(t *testing.T) {
	result, err := Run(context.Background(), shell("printf out; printf err >&2"), quietOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "out" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "out")
	}
	if result.Stderr != "err" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "err")
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	command := Command{Path: "cat", Stdin: strings.NewReader("the prompt")}
	result, err := Run(context.Background(), command, quietOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "the prompt" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "the prompt")
	}
}

func TestRunUsesGivenEnvironment(t *testing.T) {
	command := shell(`printf "%s" "$ONLY_THIS"`)
	command.Env = []string{"ONLY_THIS=value", "PATH=/usr/bin:/bin"}
	result, err := Run(context.Background(), command, quietOptions())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "value" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "value")
	}
}

func TestRunTeesStderr(t *testing.T) {
	var live bytes.Buffer
	options := quietOptions()
	options.Stderr = &live
	result, err := Run(context.Background(), shell("echo progress >&2"), options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if live.String() != "progress\n" {
		t.Errorf("live stderr = %q, want %q", live.String(), "progress\n")
	}
	if result.Stderr != "progress\n" {
		t.Errorf("captured stderr = %q, want %q", result.Stderr, "progress\n")
	}
}

func TestRunCapsOutput(t *testing.T) {
	options := quietOptions()
	options.MaxOutputBytes = 8
	result, err := Run(context.Background(), shell("printf 0123456789abcdef"), options)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := "01234567" + TruncationMarker(8); result.Stdout != want {
		t.Errorf("Stdout = %q, want %q", result.Stdout, want)
	}
	if !result.Truncated {
		t.Error("Truncated = false, want true")
	}
}

func TestRunFailureReturnsCommandError(t *testing.T) {
	result, err := Run(context.Background(), shell("echo oops >&2; exit 3"), quietOptions())

	var commandError *CommandError
	if !errors.As(err, &commandError) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if commandError.Status != 3 || result.ExitCode != 3 {
		t.Errorf("status = %d, result exit = %d, want 3", commandError.Status, result.ExitCode)
	}
	want := "Command failed: sh -c echo oops >&2; exit 3\n\noops"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if code := process.ExitCode(err); code != 3 {
		t.Errorf("process.ExitCode = %d, want 3", code)
	}
}

func TestRunFailureWithoutOutputReportsExitCode(t *testing.T) {
	_, err := Run(context.Background(), shell("exit 2"), quietOptions())
	want := "Command failed: sh -c exit 2 (exit code 2)"
	if err == nil || err.Error() != want {
		t.Errorf("error = %v, want %q", err, want)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	options := quietOptions()
	options.Timeout = 200 * time.Millisecond

	// The background sleep inherits stdout. Unless the whole group is
	// killed it keeps the pipe open for 30 seconds.
	start := time.Now()
	result, err := Run(context.Background(), shell("echo partial; sleep 30 & wait"), options)
	elapsed := time.Since(start)

	var timeoutError *TimeoutError
	if !errors.As(err, &timeoutError) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
	if result.Stdout != "partial\n" {
		t.Errorf("partial Stdout = %q, want %q", result.Stdout, "partial\n")
	}
	if timeoutError.Result != result {
		t.Error("TimeoutError does not carry the partial result")
	}
	if result.ExitCode != TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", result.ExitCode, TimeoutExitCode)
	}
	if code := process.ExitCode(err); code != TimeoutExitCode {
		t.Errorf("process.ExitCode = %d, want %d", code, TimeoutExitCode)
	}
}

func TestRunTimeoutWithGracePeriod(t *testing.T) {
	options := quietOptions()
	options.Timeout = 200 * time.Millisecond
	options.GracePeriod = 100 * time.Millisecond

	// The trap ignores SIGTERM, so only the escalation ends the run.
	_, err := Run(context.Background(), shell(`trap "" TERM; sleep 30 & wait`), options)
	var timeoutError *TimeoutError
	if !errors.As(err, &timeoutError) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
}

func TestRunCallerCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	options := quietOptions()
	options.Timeout = time.Minute

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := Run(ctx, shell("sleep 30"), options)

	var timeoutError *TimeoutError
	if errors.As(err, &timeoutError) {
		t.Fatalf("caller cancellation reported as timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), Command{Path: "/nonexistent/agent"}, quietOptions())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var commandError *CommandError
	if errors.As(err, &commandError) {
		t.Errorf("missing binary reported as exit failure: %v", err)
	}
}

func TestFormatArgs(t *testing.T) {
	long := strings.Repeat("a", maxDisplayedArg+1)
	got := formatArgs([]string{"exec", "two\nlines", long, "  spaced   out  ", strings.Repeat("b", maxDisplayedArg)})
	want := []string{"exec", "<omitted>", "<omitted>", "spaced out", strings.Repeat("b", maxDisplayedArg)}
	for index := range want {
		if got[index] != want[index] {
			t.Errorf("formatArgs[%d] = %q, want %q", index, got[index], want[index])
		}
	}
}
