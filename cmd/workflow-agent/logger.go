// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/sudden-network/workflow-agent/lib/config"
)

// newLogger builds the process logger and installs it as the default.
// In auto format, a terminal gets text and anything else (the Actions
// log collector) gets JSON.
func newLogger(logConfig config.LogConfig, output io.Writer) (*slog.Logger, error) {
	level, err := (&config.Config{Log: logConfig}).LogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if useText(logConfig.Format, output) {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func useText(format string, output io.Writer) bool {
	switch format {
	case config.FormatText:
		return true
	case config.FormatJSON:
		return false
	}
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
