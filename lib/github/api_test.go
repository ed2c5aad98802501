// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCreateIssue(t *testing.T) {
	var receivedBody CreateIssueRequest
	var receivedPath, receivedMethod string

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.Path
		receivedMethod = request.Method
		json.NewDecoder(request.Body).Decode(&receivedBody)

		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Issue{
			Number:  42,
			Title:   "Test Issue",
			HTMLURL: "https://github.com/owner/repo/issues/42",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	issue, err := client.CreateIssue(context.Background(), "owner", "repo", CreateIssueRequest{
		Title:  "Test Issue",
		Body:   "Description",
		Labels: []string{"bug"},
	})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	if receivedMethod != "POST" {
		t.Errorf("method = %s, want POST", receivedMethod)
	}
	if receivedPath != "/repos/owner/repo/issues" {
		t.Errorf("path = %s, want /repos/owner/repo/issues", receivedPath)
	}
	if receivedBody.Title != "Test Issue" {
		t.Errorf("request.Title = %q, want %q", receivedBody.Title, "Test Issue")
	}
	if issue.Number != 42 {
		t.Errorf("issue.Number = %d, want 42", issue.Number)
	}
}

func TestUpdateIssue_SendsOnlySetFields(t *testing.T) {
	var receivedBody map[string]any
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPatch || request.URL.Path != "/repos/owner/repo/issues/9" {
			t.Errorf("unexpected %s %s", request.Method, request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&receivedBody)
		json.NewEncoder(writer).Encode(Issue{Number: 9, State: "closed"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	state := "closed"
	emptyLabels := []string{}
	if _, err := client.UpdateIssue(context.Background(), "owner", "repo", 9, UpdateIssueRequest{
		State:  &state,
		Labels: &emptyLabels,
	}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	if receivedBody["state"] != "closed" {
		t.Errorf("state = %v, want closed", receivedBody["state"])
	}
	if _, ok := receivedBody["title"]; ok {
		t.Error("title sent although unset")
	}
	labels, ok := receivedBody["labels"].([]any)
	if !ok || len(labels) != 0 {
		t.Errorf("labels = %v, want explicit empty list", receivedBody["labels"])
	}
}

func TestCreateIssueComment(t *testing.T) {
	var receivedBody struct {
		Body string `json:"body"`
	}
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/issues/5/comments" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&receivedBody)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Comment{ID: 77, HTMLURL: "https://github.com/owner/repo/issues/5#issuecomment-77"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	comment, err := client.CreateIssueComment(context.Background(), "owner", "repo", 5, "hello")
	if err != nil {
		t.Fatalf("CreateIssueComment: %v", err)
	}
	if receivedBody.Body != "hello" {
		t.Errorf("body = %q, want %q", receivedBody.Body, "hello")
	}
	if comment.ID != 77 {
		t.Errorf("ID = %d, want 77", comment.ID)
	}
}

func TestReviewCommentReply(t *testing.T) {
	var replyPath string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch {
		case request.Method == http.MethodGet && request.URL.Path == "/repos/owner/repo/pulls/comments/300":
			json.NewEncoder(writer).Encode(ReviewComment{
				ID:             300,
				PullRequestURL: "https://api.github.com/repos/owner/repo/pulls/17",
			})
		case request.Method == http.MethodPost:
			replyPath = request.URL.Path
			writer.WriteHeader(http.StatusCreated)
			json.NewEncoder(writer).Encode(ReviewComment{ID: 301, InReplyToID: 300})
		default:
			t.Errorf("unexpected %s %s", request.Method, request.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ctx := context.Background()
	parent, err := client.GetReviewComment(ctx, "owner", "repo", 300)
	if err != nil {
		t.Fatalf("GetReviewComment: %v", err)
	}
	number, err := parent.PullNumber()
	if err != nil {
		t.Fatalf("PullNumber: %v", err)
	}
	if number != 17 {
		t.Errorf("PullNumber = %d, want 17", number)
	}

	reply, err := client.CreateReviewCommentReply(ctx, "owner", "repo", number, 300, "done")
	if err != nil {
		t.Fatalf("CreateReviewCommentReply: %v", err)
	}
	if replyPath != "/repos/owner/repo/pulls/17/comments/300/replies" {
		t.Errorf("reply path = %s", replyPath)
	}
	if reply.InReplyToID != 300 {
		t.Errorf("InReplyToID = %d, want 300", reply.InReplyToID)
	}
}

func TestReviewComment_PullNumberMalformed(t *testing.T) {
	for _, pullURL := range []string{"", "https://api.github.com/repos/o/r/issues/3", "https://api.github.com/repos/o/r/pulls/abc"} {
		comment := ReviewComment{ID: 1, PullRequestURL: pullURL}
		if _, err := comment.PullNumber(); err == nil {
			t.Errorf("PullNumber(%q) succeeded, want error", pullURL)
		}
	}
}

func TestGetBranchRef_EscapesSegments(t *testing.T) {
	var receivedPath string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		receivedPath = request.URL.EscapedPath()
		json.NewEncoder(writer).Encode(Ref{Ref: "refs/heads/feature/x y", Object: RefObject{SHA: "abc"}})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ref, err := client.GetBranchRef(context.Background(), "owner", "repo", "feature/x y")
	if err != nil {
		t.Fatalf("GetBranchRef: %v", err)
	}
	if receivedPath != "/repos/owner/repo/git/ref/heads/feature/x%20y" {
		t.Errorf("path = %s", receivedPath)
	}
	if ref.Object.SHA != "abc" {
		t.Errorf("SHA = %q, want abc", ref.Object.SHA)
	}
}

func TestCreateBranch(t *testing.T) {
	var receivedBody map[string]string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/git/refs" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&receivedBody)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(Ref{Ref: receivedBody["ref"], Object: RefObject{SHA: receivedBody["sha"]}})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	ref, err := client.CreateBranch(context.Background(), "owner", "repo", "agent/fix", "deadbeef")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if receivedBody["ref"] != "refs/heads/agent/fix" || receivedBody["sha"] != "deadbeef" {
		t.Errorf("request = %v", receivedBody)
	}
	if ref.Ref != "refs/heads/agent/fix" {
		t.Errorf("Ref = %q", ref.Ref)
	}
}

func TestGetContents(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("package main\n"))
	wrapped := encoded[:8] + "\n" + encoded[8:] + "\n"
	var receivedRef string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/contents/cmd/main.go" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		receivedRef = request.URL.Query().Get("ref")
		json.NewEncoder(writer).Encode(Content{
			Type: "file", Path: "cmd/main.go", SHA: "blob1", Encoding: "base64", Content: wrapped,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	content, err := client.GetContents(context.Background(), "owner", "repo", "/cmd/main.go", "dev")
	if err != nil {
		t.Fatalf("GetContents: %v", err)
	}
	if receivedRef != "dev" {
		t.Errorf("ref = %q, want dev", receivedRef)
	}
	decoded, err := content.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != "package main\n" {
		t.Errorf("decoded = %q", decoded)
	}
}

func TestGetContents_Directory(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`[{"type":"file","path":"cmd/main.go"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.GetContents(context.Background(), "owner", "repo", "cmd", "")
	if err == nil || !strings.Contains(err.Error(), "directory") {
		t.Fatalf("err = %v, want directory error", err)
	}
}

func TestPutContents(t *testing.T) {
	var receivedBody PutContentRequest
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPut || request.URL.Path != "/repos/owner/repo/contents/docs/notes.md" {
			t.Errorf("unexpected %s %s", request.Method, request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&receivedBody)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(ContentUpdate{
			Content: &Content{Path: "docs/notes.md", HTMLURL: "https://github.com/owner/repo/blob/main/docs/notes.md"},
			Commit:  ContentCommit{SHA: "c0ffee"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	update, err := client.PutContents(context.Background(), "owner", "repo", "docs/notes.md", PutContentRequest{
		Message: "add notes",
		Content: base64.StdEncoding.EncodeToString([]byte("notes")),
		Branch:  "main",
	})
	if err != nil {
		t.Fatalf("PutContents: %v", err)
	}
	if receivedBody.SHA != "" {
		t.Errorf("sha = %q, want empty for create", receivedBody.SHA)
	}
	if update.Commit.SHA != "c0ffee" {
		t.Errorf("commit SHA = %q, want c0ffee", update.Commit.SHA)
	}
}

func TestCreatePullRequest(t *testing.T) {
	var receivedBody CreatePullRequestRequest
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/pulls" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		json.NewDecoder(request.Body).Decode(&receivedBody)
		writer.WriteHeader(http.StatusCreated)
		json.NewEncoder(writer).Encode(PullRequest{Number: 8, HTMLURL: "https://github.com/owner/repo/pull/8"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	pullRequest, err := client.CreatePullRequest(context.Background(), "owner", "repo", CreatePullRequestRequest{
		Title: "Fix", Head: "agent/fix", Base: "main", Draft: true,
	})
	if err != nil {
		t.Fatalf("CreatePullRequest: %v", err)
	}
	if !receivedBody.Draft || receivedBody.Base != "main" {
		t.Errorf("request = %+v", receivedBody)
	}
	if pullRequest.Number != 8 {
		t.Errorf("Number = %d, want 8", pullRequest.Number)
	}
}

func TestGetCollaboratorPermission(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/collaborators/octocat/permission" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writer.Write([]byte(`{"permission":"write","role_name":"maintain","user":{"login":"octocat"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	permission, err := client.GetCollaboratorPermission(context.Background(), "owner", "repo", "octocat")
	if err != nil {
		t.Fatalf("GetCollaboratorPermission: %v", err)
	}
	if permission.Permission != "write" || permission.RoleName != "maintain" {
		t.Errorf("permission = %+v", permission)
	}
}

func TestListCollaborators(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/collaborators" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.URL.Query().Get("permission"); got != "push" {
			t.Errorf("permission = %q, want push", got)
		}
		writer.Write([]byte(`[{"login":"alice"},{"login":"bob"},{"login":"alice"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	logins, err := client.ListCollaborators(context.Background(), "owner", "repo", "push")
	if err != nil {
		t.Fatalf("ListCollaborators: %v", err)
	}
	if len(logins) != 2 || logins[0] != "alice" || logins[1] != "bob" {
		t.Errorf("logins = %v, want [alice bob]", logins)
	}
}

func TestCreateReaction_Paths(t *testing.T) {
	tests := []struct {
		target ReactionTarget
		id     int64
		path   string
	}{
		{ReactToIssue, 4, "/repos/owner/repo/issues/4/reactions"},
		{ReactToIssueComment, 55, "/repos/owner/repo/issues/comments/55/reactions"},
		{ReactToReviewComment, 66, "/repos/owner/repo/pulls/comments/66/reactions"},
	}
	for _, test := range tests {
		var receivedPath, receivedContent string
		server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			receivedPath = request.URL.Path
			var body struct {
				Content string `json:"content"`
			}
			json.NewDecoder(request.Body).Decode(&body)
			receivedContent = body.Content
			writer.WriteHeader(http.StatusCreated)
			writer.Write([]byte(`{"id":1,"content":"eyes"}`))
		}))

		client := newTestClient(t, server)
		if _, err := client.CreateReaction(context.Background(), "owner", "repo", test.target, test.id, ReactionEyes); err != nil {
			t.Errorf("CreateReaction(%d): %v", test.target, err)
		}
		if receivedPath != test.path {
			t.Errorf("path = %s, want %s", receivedPath, test.path)
		}
		if receivedContent != "eyes" {
			t.Errorf("content = %q, want eyes", receivedContent)
		}
		server.Close()
	}
}

func TestListArtifacts(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var receivedName string
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/actions/artifacts" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		receivedName = request.URL.Query().Get("name")
		json.NewEncoder(writer).Encode(map[string]any{
			"total_count": 2,
			"artifacts": []Artifact{
				{ID: 1, Name: receivedName, CreatedAt: created, WorkflowRun: &ArtifactRun{ID: 900}},
				{ID: 2, Name: receivedName, CreatedAt: created.Add(time.Hour), Expired: true},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	artifacts, err := client.ListArtifacts(context.Background(), "owner", "repo", "workflow-agent-issue-42")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if receivedName != "workflow-agent-issue-42" {
		t.Errorf("name query = %q", receivedName)
	}
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(artifacts))
	}
	if artifacts[0].WorkflowRun == nil || artifacts[0].WorkflowRun.ID != 900 {
		t.Errorf("artifact 1 run = %+v", artifacts[0].WorkflowRun)
	}
	if !artifacts[1].Expired {
		t.Error("artifact 2 should be expired")
	}
}

func TestDownloadArtifact_FollowsRedirect(t *testing.T) {
	blob := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("PK-zip-bytes"))
	}))
	defer blob.Close()

	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/repos/owner/repo/actions/artifacts/12/zip" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		http.Redirect(writer, request, blob.URL+"/blob", http.StatusFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	// Both TLS servers share the httptest root, so either client trusts both.
	reader, err := client.DownloadArtifact(context.Background(), "owner", "repo", 12)
	if err != nil {
		t.Fatalf("DownloadArtifact: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "PK-zip-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestDownloadArtifact_Expired(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusGone)
		writer.Write([]byte(`{"message":"Artifact has expired"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.DownloadArtifact(context.Background(), "owner", "repo", 12)
	if !IsGone(err) {
		t.Fatalf("err = %v, want 410", err)
	}
}
