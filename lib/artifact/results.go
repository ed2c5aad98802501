// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sudden-network/workflow-agent/lib/netutil"
)

// artifactServicePath is the twirp route prefix of the Actions results
// artifact service.
const artifactServicePath = "/twirp/github.actions.results.api.v1.ArtifactService/"

// resultsScopePrefix prefixes the runtime token scope that names the
// current run's backend identifiers: "Actions.Results:<run>:<job>".
const resultsScopePrefix = "Actions.Results:"

// ResultsConfig configures a [ResultsClient].
type ResultsConfig struct {
	// URL is ACTIONS_RESULTS_URL.
	URL string

	// RuntimeToken is ACTIONS_RUNTIME_TOKEN. It is sent as a bearer
	// token and its "scp" claim names the run's backend identifiers.
	RuntimeToken string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// ResultsClient uploads artifacts through the Actions results service,
// the same path actions/upload-artifact takes. It only works inside a
// running workflow job, where the runner provides the results URL and
// a runtime token.
type ResultsClient struct {
	baseURL      string
	token        string
	runBackendID string
	jobBackendID string
	httpClient   *http.Client
}

// NewResultsClient validates the runtime token and extracts the
// workflow run and job backend identifiers from it.
func NewResultsClient(config ResultsConfig) (*ResultsClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("actions results URL is empty (ACTIONS_RESULTS_URL)")
	}
	if config.RuntimeToken == "" {
		return nil, fmt.Errorf("actions runtime token is empty (ACTIONS_RUNTIME_TOKEN)")
	}

	runBackendID, jobBackendID, err := parseBackendIDs(config.RuntimeToken)
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &ResultsClient{
		baseURL:      strings.TrimRight(config.URL, "/"),
		token:        config.RuntimeToken,
		runBackendID: runBackendID,
		jobBackendID: jobBackendID,
		httpClient:   httpClient,
	}, nil
}

// parseBackendIDs reads the backend identifiers from the token's scope
// claim. The token is issued and verified by the runner's services; we
// only read it, so no signature check happens here.
func parseBackendIDs(runtimeToken string) (string, string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(runtimeToken, claims); err != nil {
		return "", "", fmt.Errorf("parsing actions runtime token: %w", err)
	}

	scope, _ := claims["scp"].(string)
	if scope == "" {
		return "", "", fmt.Errorf("actions runtime token has no scp claim")
	}

	for _, entry := range strings.Fields(scope) {
		rest, ok := strings.CutPrefix(entry, resultsScopePrefix)
		if !ok {
			continue
		}
		runBackendID, jobBackendID, ok := strings.Cut(rest, ":")
		if !ok || runBackendID == "" || jobBackendID == "" {
			return "", "", fmt.Errorf("malformed results scope %q in actions runtime token", entry)
		}
		return runBackendID, jobBackendID, nil
	}
	return "", "", fmt.Errorf("actions runtime token has no %s scope", strings.TrimSuffix(resultsScopePrefix, ":"))
}

type createArtifactRequest struct {
	WorkflowRunBackendID    string `json:"workflowRunBackendId"`
	WorkflowJobRunBackendID string `json:"workflowJobRunBackendId"`
	Name                    string `json:"name"`
	ExpiresAt               string `json:"expiresAt,omitempty"`
	Version                 int    `json:"version"`
}

type createArtifactResponse struct {
	OK              bool   `json:"ok"`
	SignedUploadURL string `json:"signedUploadUrl"`
}

type finalizeArtifactRequest struct {
	WorkflowRunBackendID    string `json:"workflowRunBackendId"`
	WorkflowJobRunBackendID string `json:"workflowJobRunBackendId"`
	Name                    string `json:"name"`
	Size                    string `json:"size"`
	Hash                    string `json:"hash,omitempty"`
}

type finalizeArtifactResponse struct {
	OK         bool   `json:"ok"`
	ArtifactID string `json:"artifactId"`
}

// twirpError is the JSON error body of a failed twirp call.
type twirpError struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

// Upload creates an artifact named name, uploads the archive from
// body (size bytes, SHA-256 hex digest sha256Hex) to its signed blob
// URL, and finalizes it. Returns the new artifact's ID.
func (client *ResultsClient) Upload(ctx context.Context, name string, body io.Reader, size int64, sha256Hex string, expiresAt time.Time) (int64, error) {
	create := createArtifactRequest{
		WorkflowRunBackendID:    client.runBackendID,
		WorkflowJobRunBackendID: client.jobBackendID,
		Name:                    name,
		Version:                 4,
	}
	if !expiresAt.IsZero() {
		create.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}

	var created createArtifactResponse
	if err := client.call(ctx, "CreateArtifact", create, &created); err != nil {
		return 0, err
	}
	if !created.OK || created.SignedUploadURL == "" {
		return 0, fmt.Errorf("creating artifact %q: results service refused the request", name)
	}

	if err := client.putBlob(ctx, created.SignedUploadURL, body, size); err != nil {
		return 0, fmt.Errorf("uploading artifact %q: %w", name, err)
	}

	finalize := finalizeArtifactRequest{
		WorkflowRunBackendID:    client.runBackendID,
		WorkflowJobRunBackendID: client.jobBackendID,
		Name:                    name,
		Size:                    strconv.FormatInt(size, 10),
	}
	if sha256Hex != "" {
		finalize.Hash = "sha256:" + sha256Hex
	}

	var finalized finalizeArtifactResponse
	if err := client.call(ctx, "FinalizeArtifact", finalize, &finalized); err != nil {
		return 0, err
	}
	if !finalized.OK {
		return 0, fmt.Errorf("finalizing artifact %q: results service refused the request", name)
	}

	artifactID, err := strconv.ParseInt(finalized.ArtifactID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("finalizing artifact %q: invalid artifact id %q", name, finalized.ArtifactID)
	}
	return artifactID, nil
}

// call invokes one twirp method with a JSON body.
func (client *ResultsClient) call(ctx context.Context, method string, requestBody, result any) error {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+artifactServicePath+method, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+client.token)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body := []byte(netutil.ErrorBody(response.Body))
		var wireError twirpError
		if json.Unmarshal(body, &wireError) == nil && wireError.Code != "" {
			return fmt.Errorf("%s: HTTP %d: %s: %s", method, response.StatusCode, wireError.Code, wireError.Message)
		}
		return fmt.Errorf("%s: HTTP %d: %s", method, response.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// putBlob uploads the archive as a single block blob. The signed URL
// carries its own authorization; the runtime token is not sent.
func (client *ResultsClient) putBlob(ctx context.Context, signedURL string, body io.Reader, size int64) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return fmt.Errorf("creating blob request: %w", err)
	}
	request.ContentLength = size
	request.Header.Set("Content-Type", "application/zip")
	request.Header.Set("x-ms-blob-type", "BlockBlob")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("blob upload: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}
	return nil
}
