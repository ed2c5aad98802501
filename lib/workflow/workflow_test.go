// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sudden-network/workflow-agent/lib/github"
	"github.com/sudden-network/workflow-agent/lib/session"
)

// loadEvent writes payload to a temporary event file and loads a
// context for it.
func loadEvent(t *testing.T, eventName, actor, payload string) *Context {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("writing event payload: %v", err)
	}
	env := map[string]string{
		"GITHUB_EVENT_NAME": eventName,
		"GITHUB_EVENT_PATH": path,
		"GITHUB_REPOSITORY": "acme/widgets",
		"GITHUB_RUN_ID":     "9001",
		"GITHUB_ACTOR":      actor,
	}
	run, err := Load(func(name string) string { return env[name] })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return run
}

func TestLoad(t *testing.T) {
	run := loadEvent(t, "issue_comment", "octocat",
		`{"action":"created","issue":{"number":42,"title":"Bug"},"comment":{"id":7,"body":"@agent fix it"}}`)

	if run.Owner != "acme" || run.Repo != "widgets" {
		t.Errorf("repository = %s/%s, want acme/widgets", run.Owner, run.Repo)
	}
	if run.ServerURL != DefaultServerURL {
		t.Errorf("ServerURL = %q, want %q", run.ServerURL, DefaultServerURL)
	}
	if run.Event.Action != "created" || run.Event.Comment.Body != "@agent fix it" {
		t.Errorf("event = %+v", run.Event)
	}
	if want := "https://github.com/acme/widgets/actions/runs/9001"; run.RunURL() != want {
		t.Errorf("RunURL = %q, want %q", run.RunURL(), want)
	}
}

func TestLoadRejectsIncompleteEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing repository", map[string]string{"GITHUB_EVENT_NAME": "issues", "GITHUB_EVENT_PATH": "/x"}},
		{"malformed repository", map[string]string{"GITHUB_REPOSITORY": "acme", "GITHUB_EVENT_NAME": "issues", "GITHUB_EVENT_PATH": "/x"}},
		{"missing event name", map[string]string{"GITHUB_REPOSITORY": "acme/widgets", "GITHUB_EVENT_PATH": "/x"}},
		{"missing event path", map[string]string{"GITHUB_REPOSITORY": "acme/widgets", "GITHUB_EVENT_NAME": "issues"}},
		{"unreadable event file", map[string]string{
			"GITHUB_REPOSITORY": "acme/widgets",
			"GITHUB_EVENT_NAME": "issues",
			"GITHUB_EVENT_PATH": "/nonexistent/event.json",
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Load(func(name string) string { return test.env[name] }); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		payload   string
		want      session.Key
		wantOK    bool
	}{
		{"issue", "issues", `{"issue":{"number":42}}`, session.Key{Kind: session.KindIssue, Number: 42}, true},
		{
			"comment on issue", "issue_comment",
			`{"issue":{"number":42},"comment":{"id":1}}`,
			session.Key{Kind: session.KindIssue, Number: 42}, true,
		},
		{
			"comment on pull request", "issue_comment",
			`{"issue":{"number":7,"pull_request":{"url":"u"}},"comment":{"id":1}}`,
			session.Key{Kind: session.KindPullRequest, Number: 7}, true,
		},
		{"pull request", "pull_request", `{"pull_request":{"number":7}}`, session.Key{Kind: session.KindPullRequest, Number: 7}, true},
		{
			"review", "pull_request_review",
			`{"pull_request":{"number":7},"review":{"id":3}}`,
			session.Key{Kind: session.KindPullRequest, Number: 7}, true,
		},
		{
			"review comment", "pull_request_review_comment",
			`{"pull_request":{"number":7},"comment":{"id":3,"pull_request_url":"u"}}`,
			session.Key{Kind: session.KindPullRequest, Number: 7}, true,
		},
		{"push", "push", `{"ref":"refs/heads/main"}`, session.Key{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			run := loadEvent(t, test.eventName, "octocat", test.payload)
			got, ok := run.Subject()
			if ok != test.wantOK || got != test.want {
				t.Errorf("Subject() = %v, %v, want %v, %v", got, ok, test.want, test.wantOK)
			}
		})
	}
}

func TestTriggerReaction(t *testing.T) {
	tests := []struct {
		name       string
		eventName  string
		payload    string
		wantTarget github.ReactionTarget
		wantID     int64
		wantOK     bool
	}{
		{"issue comment", "issue_comment", `{"issue":{"number":42},"comment":{"id":11}}`, github.ReactToIssueComment, 11, true},
		{
			"review comment", "pull_request_review_comment",
			`{"pull_request":{"number":7},"comment":{"id":12,"pull_request_url":"u"}}`,
			github.ReactToReviewComment, 12, true,
		},
		{"issue body", "issues", `{"issue":{"number":42}}`, github.ReactToIssue, 42, true},
		{"nothing to react to", "push", `{}`, 0, 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			run := loadEvent(t, test.eventName, "octocat", test.payload)
			target, id, ok := run.TriggerReaction()
			if target != test.wantTarget || id != test.wantID || ok != test.wantOK {
				t.Errorf("TriggerReaction() = %v, %d, %v, want %v, %d, %v",
					target, id, ok, test.wantTarget, test.wantID, test.wantOK)
			}
		})
	}
}

type fakeGitHub struct {
	permission      *github.CollaboratorPermission
	permissionErr   error
	permissionCalls int

	collaborators []string

	issue   *github.Issue
	comment *github.Comment
}

func (fake *fakeGitHub) GetCollaboratorPermission(_ context.Context, _, _, _ string) (*github.CollaboratorPermission, error) {
	fake.permissionCalls++
	return fake.permission, fake.permissionErr
}

func (fake *fakeGitHub) ListCollaborators(_ context.Context, _, _, permission string) ([]string, error) {
	if permission != "push" {
		return nil, errors.New("unexpected permission filter " + permission)
	}
	return fake.collaborators, nil
}

func (fake *fakeGitHub) GetIssue(_ context.Context, _, _ string, _ int) (*github.Issue, error) {
	return fake.issue, nil
}

func (fake *fakeGitHub) GetIssueComment(_ context.Context, _, _ string, _ int64) (*github.Comment, error) {
	return fake.comment, nil
}

func TestEnsureWriteAccess(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		permission *github.CollaboratorPermission
		err        error
		trusted    []string
		wantErr    bool
		wantLookup bool
	}{
		{"admin", "octocat", &github.CollaboratorPermission{Permission: "admin"}, nil, nil, false, true},
		{"write", "octocat", &github.CollaboratorPermission{Permission: "write"}, nil, nil, false, true},
		{"maintain role", "octocat", &github.CollaboratorPermission{Permission: "read", RoleName: "maintain"}, nil, nil, false, true},
		{"read", "octocat", &github.CollaboratorPermission{Permission: "read", RoleName: "read"}, nil, nil, true, true},
		{"not a collaborator", "octocat", nil, &github.APIError{StatusCode: 404}, nil, true, true},
		{"bot skips check", "dependabot[bot]", nil, nil, nil, false, false},
		{"trusted skips check", "Friend", nil, nil, []string{"friend"}, false, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fake := &fakeGitHub{permission: test.permission, permissionErr: test.err}
			run := loadEvent(t, "issues", test.actor, `{"issue":{"number":1}}`)
			err := EnsureWriteAccess(context.Background(), fake, run, test.trusted)
			if test.wantErr {
				var accessError *AccessError
				if !errors.As(err, &accessError) {
					t.Fatalf("error = %v, want *AccessError", err)
				}
			} else if err != nil {
				t.Fatalf("EnsureWriteAccess: %v", err)
			}
			if lookedUp := fake.permissionCalls > 0; lookedUp != test.wantLookup {
				t.Errorf("permission looked up = %v, want %v", lookedUp, test.wantLookup)
			}
		})
	}
}

func TestEnsureWriteAccessTransportErrorIsNotAccessError(t *testing.T) {
	fake := &fakeGitHub{permissionErr: &github.APIError{StatusCode: 502}}
	run := loadEvent(t, "issues", "octocat", `{"issue":{"number":1}}`)
	err := EnsureWriteAccess(context.Background(), fake, run, nil)
	var accessError *AccessError
	if err == nil || errors.As(err, &accessError) {
		t.Errorf("error = %v, want a wrapped API error", err)
	}
}

func TestAccessErrorMessages(t *testing.T) {
	notCollaborator := &AccessError{Actor: "mallory", Repository: "acme/widgets"}
	if !strings.Contains(notCollaborator.Error(), "is not a collaborator on acme/widgets") {
		t.Errorf("Error() = %q", notCollaborator.Error())
	}
	readOnly := &AccessError{Actor: "mallory", Repository: "acme/widgets", Permission: "read"}
	if !strings.Contains(readOnly.Error(), `detected permission "read"`) {
		t.Errorf("Error() = %q", readOnly.Error())
	}
}

func TestTrustedCollaborators(t *testing.T) {
	fake := &fakeGitHub{collaborators: []string{"alice", "bob"}}
	run := loadEvent(t, "issues", "alice", `{"issue":{"number":1}}`)
	got, err := TrustedCollaborators(context.Background(), fake, run)
	if err != nil {
		t.Fatalf("TrustedCollaborators: %v", err)
	}
	if strings.Join(got, ",") != "alice,bob" {
		t.Errorf("TrustedCollaborators = %v, want [alice bob]", got)
	}
}

func TestIsStale(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		fake    *fakeGitHub
		want    bool
	}{
		{
			"created events are never stale",
			`{"action":"created","issue":{"number":1},"comment":{"id":5,"body":"old"}}`,
			&fakeGitHub{comment: &github.Comment{Body: "new"}},
			false,
		},
		{
			"edited comment unchanged",
			`{"action":"edited","issue":{"number":1},"comment":{"id":5,"body":"same"}}`,
			&fakeGitHub{comment: &github.Comment{Body: "same"}},
			false,
		},
		{
			"edited comment changed again",
			`{"action":"edited","issue":{"number":1},"comment":{"id":5,"body":"first edit"}}`,
			&fakeGitHub{comment: &github.Comment{Body: "second edit"}},
			true,
		},
		{
			"edited issue title changed again",
			`{"action":"edited","issue":{"number":1,"title":"a","body":"b"}}`,
			&fakeGitHub{issue: &github.Issue{Title: "c", Body: "b"}},
			true,
		},
		{
			"edited issue current",
			`{"action":"edited","issue":{"number":1,"title":"a","body":"b"}}`,
			&fakeGitHub{issue: &github.Issue{Title: "a", Body: "b"}},
			false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			run := loadEvent(t, "issue_comment", "octocat", test.payload)
			got, err := IsStale(context.Background(), test.fake, run)
			if err != nil {
				t.Fatalf("IsStale: %v", err)
			}
			if got != test.want {
				t.Errorf("IsStale = %v, want %v", got, test.want)
			}
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	run := loadEvent(t, "issues", "octocat", `{"action":"opened","issue":{"number":42,"title":"Bug"}}`)
	prompt, err := RenderPrompt("context:\n{{workflow_context}}\nextra: {{extra_prompt}}\n", run.Summarize(true, []string{"octocat"}, "github-actions[bot]"), "")
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if !strings.HasSuffix(prompt, "extra: "+DefaultExtraPrompt) {
		t.Errorf("prompt does not end with the default extra prompt:\n%s", prompt)
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(prompt, "context:\n"), "\nextra: "+DefaultExtraPrompt)
	var summary Summary
	if err := json.Unmarshal([]byte(encoded), &summary); err != nil {
		t.Fatalf("workflow context is not JSON: %v\n%s", err, encoded)
	}
	if summary.Subject != "issue #42" || !summary.Resumed || summary.RunURL != run.RunURL() {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Trusted) != 1 || summary.Trusted[0] != "octocat" {
		t.Errorf("trusted = %v, want [octocat]", summary.Trusted)
	}
	if summary.TokenActor != "github-actions[bot]" {
		t.Errorf("token actor = %q, want github-actions[bot]", summary.TokenActor)
	}
}

func TestRenderPromptDefaultTemplate(t *testing.T) {
	run := loadEvent(t, "issues", "octocat", `{"issue":{"number":42}}`)
	prompt, err := RenderPrompt("", run.Summarize(false, nil, ""), "Only triage.")
	if err != nil {
		t.Fatalf("RenderPrompt: %v", err)
	}
	if strings.Contains(prompt, "{{") {
		t.Errorf("placeholders left in prompt:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Only triage.") {
		t.Errorf("extra prompt missing from the end:\n%s", prompt)
	}
	if !strings.Contains(prompt, `"event_name": "issues"`) {
		t.Errorf("workflow context missing:\n%s", prompt)
	}
}
