// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for workflow-agent.
//
// Values are injected with -ldflags, for example:
//
//	go build -ldflags "-X github.com/sudden-network/workflow-agent/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When nothing is injected, Info falls back to the module build info
// recorded by the Go toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// Version is the release version.
	Version = "0.1.0-dev"
)

// Short returns the version string reported as the bridge's serverInfo
// and used in the User-Agent header.
func Short() string {
	return Version
}

// Info returns "version (commit)" for --version output.
func Info() string {
	commit := GitCommit
	if commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
					commit = setting.Value[:7]
				}
			}
		}
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, runtime.Version())
}
