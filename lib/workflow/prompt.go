// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultExtraPrompt is appended when no extra prompt is configured.
const DefaultExtraPrompt = "Act autonomously and take action only if it is useful."

//go:embed prompt.md
var defaultPromptTemplate string

// DefaultPromptTemplate returns the built-in prompt template.
func DefaultPromptTemplate() string {
	return defaultPromptTemplate
}

// RenderPrompt fills template's {{workflow_context}} placeholder with the
// indented JSON of summary and {{extra_prompt}} with extra, or
// DefaultExtraPrompt when extra is blank. An empty template means the
// built-in one.
func RenderPrompt(template string, summary Summary, extra string) (string, error) {
	if template == "" {
		template = defaultPromptTemplate
	}
	if strings.TrimSpace(extra) == "" {
		extra = DefaultExtraPrompt
	}
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding workflow context: %w", err)
	}
	replacer := strings.NewReplacer(
		"{{workflow_context}}", string(encoded),
		"{{extra_prompt}}", strings.TrimSpace(extra),
	)
	return strings.TrimSpace(replacer.Replace(template)), nil
}
