// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow reads the GitHub Actions run a workflow-agent
// invocation belongs to: the triggering event payload, the repository,
// the actor and the run's URL. It also decides which issue or pull
// request the run is about and whether the run should proceed at all.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sudden-network/workflow-agent/lib/github"
	"github.com/sudden-network/workflow-agent/lib/session"
)

// DefaultServerURL is used when GITHUB_SERVER_URL is unset.
const DefaultServerURL = "https://github.com"

// Event is the subset of an event payload the agent acts on. Payload
// keeps the whole document for the prompt.
type Event struct {
	Action      string              `json:"action"`
	Issue       *github.Issue       `json:"issue,omitempty"`
	PullRequest *github.PullRequest `json:"pull_request,omitempty"`
	Comment     *EventComment       `json:"comment,omitempty"`
	Review      *EventReview        `json:"review,omitempty"`
	Sender      *github.User        `json:"sender,omitempty"`
}

// EventComment is the comment of issue_comment and
// pull_request_review_comment events. PullRequestURL is set only for
// review comments.
type EventComment struct {
	ID             int64       `json:"id"`
	Body           string      `json:"body"`
	HTMLURL        string      `json:"html_url"`
	User           github.User `json:"user"`
	PullRequestURL string      `json:"pull_request_url,omitempty"`
	InReplyToID    int64       `json:"in_reply_to_id,omitempty"`
}

// EventReview is the review of a pull_request_review event.
type EventReview struct {
	ID      int64       `json:"id"`
	Body    string      `json:"body"`
	State   string      `json:"state"`
	HTMLURL string      `json:"html_url"`
	User    github.User `json:"user"`
}

// Context is one Actions run.
type Context struct {
	EventName string
	Owner     string
	Repo      string
	RunID     string
	ServerURL string
	Actor     string

	Event   Event
	Payload json.RawMessage
}

// Load reads the run context from the standard Actions environment
// variables through getenv (os.Getenv in production) and parses the
// event payload file.
func Load(getenv func(string) string) (*Context, error) {
	repository := getenv("GITHUB_REPOSITORY")
	owner, repo, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", repository)
	}

	run := &Context{
		EventName: getenv("GITHUB_EVENT_NAME"),
		Owner:     owner,
		Repo:      repo,
		RunID:     getenv("GITHUB_RUN_ID"),
		ServerURL: strings.TrimSuffix(getenv("GITHUB_SERVER_URL"), "/"),
		Actor:     getenv("GITHUB_ACTOR"),
	}
	if run.ServerURL == "" {
		run.ServerURL = DefaultServerURL
	}
	if run.EventName == "" {
		return nil, errors.New("GITHUB_EVENT_NAME is not set")
	}

	eventPath := getenv("GITHUB_EVENT_PATH")
	if eventPath == "" {
		return nil, errors.New("GITHUB_EVENT_PATH is not set")
	}
	payload, err := os.ReadFile(eventPath)
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}
	if err := run.setPayload(payload); err != nil {
		return nil, err
	}
	return run, nil
}

func (run *Context) setPayload(payload []byte) error {
	if err := json.Unmarshal(payload, &run.Event); err != nil {
		return fmt.Errorf("parsing %s event payload: %w", run.EventName, err)
	}
	run.Payload = json.RawMessage(payload)
	return nil
}

// RunURL links to the workflow run.
func (run *Context) RunURL() string {
	return fmt.Sprintf("%s/%s/%s/actions/runs/%s", run.ServerURL, run.Owner, run.Repo, run.RunID)
}

// Subject returns the session key of the issue or pull request the event
// is about. ok is false for events that have neither, such as push or
// workflow_dispatch.
func (run *Context) Subject() (session.Key, bool) {
	event := run.Event
	switch {
	case event.PullRequest != nil && event.PullRequest.Number > 0:
		key, err := session.NewKey(session.KindPullRequest, event.PullRequest.Number)
		return key, err == nil
	case event.Issue != nil && event.Issue.Number > 0:
		kind := session.KindIssue
		if event.Issue.PullRequest != nil {
			kind = session.KindPullRequest
		}
		key, err := session.NewKey(kind, event.Issue.Number)
		return key, err == nil
	}
	return session.Key{}, false
}

// TriggerReaction returns where a reaction acknowledging the run goes:
// the triggering comment when there is one, otherwise the subject.
func (run *Context) TriggerReaction() (target github.ReactionTarget, id int64, ok bool) {
	if comment := run.Event.Comment; comment != nil && comment.ID > 0 {
		if run.EventName == "pull_request_review_comment" || comment.PullRequestURL != "" {
			return github.ReactToReviewComment, comment.ID, true
		}
		return github.ReactToIssueComment, comment.ID, true
	}
	if key, found := run.Subject(); found {
		return github.ReactToIssue, int64(key.Number), true
	}
	return 0, 0, false
}

// IsBot reports whether the actor is a GitHub App or Actions bot.
func (run *Context) IsBot() bool {
	return strings.HasSuffix(run.Actor, "[bot]")
}

// Summary is the JSON form of the run context given to the agent.
type Summary struct {
	EventName  string          `json:"event_name"`
	Action     string          `json:"action,omitempty"`
	Repository string          `json:"repository"`
	Actor      string          `json:"actor"`
	TokenActor string          `json:"token_actor,omitempty"`
	RunID      string          `json:"run_id"`
	RunURL     string          `json:"run_url"`
	Subject    string          `json:"subject,omitempty"`
	Resumed    bool            `json:"resumed"`
	Trusted    []string        `json:"trusted_collaborators,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// Summarize builds the agent-facing context. resumed tells the agent
// whether its earlier conversation was restored; trusted lists the
// collaborators whose instructions it may follow. tokenActor is the
// login its tool calls are attributed to.
func (run *Context) Summarize(resumed bool, trusted []string, tokenActor string) Summary {
	summary := Summary{
		EventName:  run.EventName,
		Action:     run.Event.Action,
		Repository: run.Owner + "/" + run.Repo,
		Actor:      run.Actor,
		TokenActor: tokenActor,
		RunID:      run.RunID,
		RunURL:     run.RunURL(),
		Resumed:    resumed,
		Trusted:    trusted,
		Payload:    run.Payload,
	}
	if key, ok := run.Subject(); ok {
		summary.Subject = string(key.Kind) + " #" + strconv.Itoa(key.Number)
	}
	if len(summary.Payload) == 0 {
		summary.Payload = json.RawMessage("{}")
	}
	return summary
}
