// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for workflow-agent.
//
// Configuration is layered, each layer overriding the one before:
//
//  1. [Default] values.
//  2. An optional YAML file given by the --config flag or the
//     WORKFLOW_AGENT_CONFIG environment variable ([LoadFile]).
//  3. GitHub Actions inputs, which the runner exposes as INPUT_*
//     environment variables ([Config.ApplyActionInputs]).
//  4. Command-line flags, applied by the binary.
//
// There is no file discovery: without an explicit path, no file is read.
//
// String fields that name paths or credentials support ${VAR} and
// ${VAR:-default} expansion after the file is loaded, so a checked-in
// file can say token: ${GITHUB_TOKEN} without holding the secret.
//
// [Config.Validate] reports every problem at once, joined with
// errors.Join, rather than stopping at the first.
package config
