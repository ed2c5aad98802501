// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sudden-network/workflow-agent/lib/clock"
	"github.com/sudden-network/workflow-agent/lib/github"
	"github.com/sudden-network/workflow-agent/lib/testutil"
)

func runtimeToken(t *testing.T, scope string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scp": scope,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("runner-signing-key"))
	if err != nil {
		t.Fatalf("signing runtime token: %v", err)
	}
	return token
}

// fakeActions serves the artifact REST endpoints and the results
// service from one TLS server.
type fakeActions struct {
	mu        sync.Mutex
	artifacts []map[string]any
	archives  map[string][]byte
	blob      []byte
	requests  map[string]json.RawMessage
	authByURL map[string]string
	status    int
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		archives:  make(map[string][]byte),
		requests:  make(map[string]json.RawMessage),
		authByURL: make(map[string]string),
	}
}

func (fake *fakeActions) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.authByURL[request.URL.Path] = request.Header.Get("Authorization")

	switch {
	case request.URL.Path == "/repos/octo/repo/actions/artifacts":
		writer.Header().Set("Content-Type", "application/json")
		json.NewEncoder(writer).Encode(map[string]any{
			"total_count": len(fake.artifacts),
			"artifacts":   fake.artifacts,
		})

	case strings.HasPrefix(request.URL.Path, "/repos/octo/repo/actions/artifacts/"):
		if fake.status != 0 {
			writer.WriteHeader(fake.status)
			writer.Write([]byte(`{"message":"nope"}`))
			return
		}
		data, ok := fake.archives[request.URL.Path]
		if !ok {
			writer.WriteHeader(http.StatusNotFound)
			writer.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		writer.Write(data)

	case strings.HasPrefix(request.URL.Path, artifactServicePath):
		method := strings.TrimPrefix(request.URL.Path, artifactServicePath)
		body, _ := io.ReadAll(request.Body)
		fake.requests[method] = body
		switch method {
		case "CreateArtifact":
			json.NewEncoder(writer).Encode(map[string]any{
				"ok":              true,
				"signedUploadUrl": "https://" + request.Host + "/blob?sig=abc",
			})
		case "FinalizeArtifact":
			json.NewEncoder(writer).Encode(map[string]any{"ok": true, "artifactId": "4242"})
		default:
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(map[string]string{"code": "bad_route", "msg": "no such method"})
		}

	case request.URL.Path == "/blob":
		if request.Header.Get("x-ms-blob-type") != "BlockBlob" {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		fake.blob, _ = io.ReadAll(request.Body)
		writer.WriteHeader(http.StatusCreated)

	default:
		writer.WriteHeader(http.StatusNotFound)
	}
}

func newTestGitHubStore(t *testing.T, fake *fakeActions, withResults bool) *GitHubStore {
	t.Helper()
	server := httptest.NewTLSServer(fake)
	t.Cleanup(server.Close)

	client, err := github.NewClient(github.Config{
		BaseURL:    server.URL,
		Token:      "repo-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	config := GitHubStoreConfig{
		Client: client,
		Owner:  "octo",
		Repo:   "repo",
		RunID:  "555",
		Clock:  clock.Fake(epoch),
	}
	if withResults {
		results, err := NewResultsClient(ResultsConfig{
			URL:          server.URL + "/",
			RuntimeToken: runtimeToken(t, "Actions.GenericRead:00000000 Actions.Results:run-backend:job-backend"),
			HTTPClient:   server.Client(),
		})
		if err != nil {
			t.Fatalf("NewResultsClient: %v", err)
		}
		config.Results = results
	}

	store, err := NewGitHubStore(config)
	if err != nil {
		t.Fatalf("NewGitHubStore: %v", err)
	}
	return store
}

func TestGitHubStoreList(t *testing.T) {
	fake := newFakeActions()
	fake.artifacts = []map[string]any{
		{
			"id": 11, "name": "workflow-agent-issue-42", "size_in_bytes": 300, "expired": false,
			"created_at": "2026-10-10T00:00:00Z", "expires_at": "2026-10-17T00:00:00Z",
			"workflow_run": map[string]any{"id": 1001},
		},
		{
			"id": 12, "name": "workflow-agent-issue-42", "expired": true,
			"created_at": "2026-10-01T00:00:00Z", "expires_at": "2026-10-08T00:00:00Z",
		},
		{"id": 13, "name": "workflow-agent-issue-420", "created_at": "2026-10-01T00:00:00Z"},
	}
	store := newTestGitHubStore(t, fake, false)

	listed, err := store.List(context.Background(), "workflow-agent-issue-42")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("List returned %d artifacts, want 2", len(listed))
	}
	first := listed[0]
	if first.ID != 11 || first.OriginRunID != "1001" || first.Size != 300 || first.Expired {
		t.Errorf("first = %+v", first)
	}
	if !first.CreatedAt.Equal(time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first CreatedAt = %v", first.CreatedAt)
	}
	second := listed[1]
	if !second.Expired || second.OriginRunID != "" {
		t.Errorf("second = %+v, want expired with no origin", second)
	}
}

func TestGitHubStoreDownload(t *testing.T) {
	source := t.TempDir()
	want := map[string]string{"sessions/rollout.jsonl": "{}\n"}
	testutil.WriteTree(t, source, want)
	var archive bytes.Buffer
	if _, err := WriteArchive(&archive, source, []string{"sessions/rollout.jsonl"}, CompressionDeflate); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	fake := newFakeActions()
	fake.archives["/repos/octo/repo/actions/artifacts/11/zip"] = archive.Bytes()
	store := newTestGitHubStore(t, fake, false)

	destination := t.TempDir()
	if err := store.Download(context.Background(), Artifact{ID: 11}, destination); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if tree := testutil.ReadTree(t, destination); !reflect.DeepEqual(tree, want) {
		t.Errorf("tree = %v, want %v", tree, want)
	}
	if auth := fake.authByURL["/repos/octo/repo/actions/artifacts/11/zip"]; auth != "Bearer repo-token" {
		t.Errorf("Authorization = %q, want the repository token", auth)
	}
}

func TestGitHubStoreDownloadErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusGone, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrForbidden},
	}
	for _, test := range tests {
		fake := newFakeActions()
		fake.status = test.status
		store := newTestGitHubStore(t, fake, false)

		err := store.Download(context.Background(), Artifact{ID: 11}, t.TempDir())
		if !errors.Is(err, test.want) {
			t.Errorf("status %d: error = %v, want %v", test.status, err, test.want)
		}
		var apiError *github.APIError
		if !errors.As(err, &apiError) {
			t.Errorf("status %d: error lost its *github.APIError", test.status)
		}
	}
}

func TestGitHubStoreUpload(t *testing.T) {
	fake := newFakeActions()
	store := newTestGitHubStore(t, fake, true)

	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"a.jsonl": "a"})

	uploaded, err := store.Upload(context.Background(), "workflow-agent-pr-8", []string{"a.jsonl"}, source, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if uploaded.ID != 4242 || uploaded.OriginRunID != "555" || !uploaded.CreatedAt.Equal(epoch) {
		t.Errorf("uploaded = %+v", uploaded)
	}

	var create createArtifactRequest
	if err := json.Unmarshal(fake.requests["CreateArtifact"], &create); err != nil {
		t.Fatalf("decoding CreateArtifact request: %v", err)
	}
	wantCreate := createArtifactRequest{
		WorkflowRunBackendID:    "run-backend",
		WorkflowJobRunBackendID: "job-backend",
		Name:                    "workflow-agent-pr-8",
		ExpiresAt:               "2026-10-24T12:00:00Z",
		Version:                 4,
	}
	if create != wantCreate {
		t.Errorf("CreateArtifact request = %+v, want %+v", create, wantCreate)
	}

	var finalize finalizeArtifactRequest
	if err := json.Unmarshal(fake.requests["FinalizeArtifact"], &finalize); err != nil {
		t.Fatalf("decoding FinalizeArtifact request: %v", err)
	}
	if finalize.Size != strconv.Itoa(len(fake.blob)) {
		t.Errorf("finalize size = %s, blob is %d bytes", finalize.Size, len(fake.blob))
	}
	if !strings.HasPrefix(finalize.Hash, "sha256:") {
		t.Errorf("finalize hash = %q, want sha256: prefix", finalize.Hash)
	}

	if auth := fake.authByURL["/blob"]; auth != "" {
		t.Errorf("blob upload sent Authorization %q, want none", auth)
	}

	destination := t.TempDir()
	if err := ExtractArchive(bytes.NewReader(fake.blob), int64(len(fake.blob)), destination); err != nil {
		t.Fatalf("uploaded blob is not a valid archive: %v", err)
	}
	if tree := testutil.ReadTree(t, destination); tree["a.jsonl"] != "a" {
		t.Errorf("uploaded tree = %v", tree)
	}
}

func TestGitHubStoreUploadWithoutResults(t *testing.T) {
	store := newTestGitHubStore(t, newFakeActions(), false)
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"a": "a"})
	if _, err := store.Upload(context.Background(), "n", []string{"a"}, source, time.Hour); err == nil {
		t.Fatal("Upload succeeded without a results client")
	}
}
