// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package agentrun

import "strings"

// withheldVariables never reach the agent. The repository credential is
// only ever used by the host process; the agent reaches the repository
// through the bridge.
var withheldVariables = map[string]bool{
	"GITHUB_TOKEN":                   true,
	"GH_TOKEN":                       true,
	"GITHUB_PAT":                     true,
	"ACTIONS_RUNTIME_TOKEN":          true,
	"ACTIONS_ID_TOKEN_REQUEST_TOKEN": true,
	"ACTIONS_ID_TOKEN_REQUEST_URL":   true,
	"AWS_ACCESS_KEY_ID":              true,
	"AWS_SECRET_ACCESS_KEY":          true,
	"AWS_SESSION_TOKEN":              true,
	"CODEX_HOME":                     true,
}

// withheldPrefixes cover action inputs (which include the token and the
// model provider key) and this program's own configuration variables.
var withheldPrefixes = []string{"INPUT_", "WORKFLOW_AGENT_"}

// AgentEnv filters environ (in os.Environ form) down to what the agent
// may see. CODEX_HOME is removed as well; Codex sets its own.
func AgentEnv(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		if withheld(name) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func withheld(name string) bool {
	upper := strings.ToUpper(name)
	if withheldVariables[upper] {
		return true
	}
	for _, prefix := range withheldPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
