// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sudden-network/workflow-agent/lib/clock"
	"github.com/sudden-network/workflow-agent/lib/netutil"
	"github.com/sudden-network/workflow-agent/lib/secret"
	"github.com/sudden-network/workflow-agent/lib/version"
)

// githubAPIVersion is the GitHub REST API version header.
const githubAPIVersion = "2022-11-28"

// defaultBaseURL is the base URL for the public GitHub API.
const defaultBaseURL = "https://api.github.com"

// Config holds configuration for creating a GitHub API Client.
//
// Exactly one of Token and Credential must be set.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to
	// "https://api.github.com" (GITHUB_API_URL on GitHub Enterprise).
	// Must use HTTPS.
	BaseURL string

	// Token is a token held as a plain string.
	Token string

	// Credential is a token held in locked memory. The bridge's
	// privileged client uses this form.
	Credential *secret.Buffer

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Clock provides time operations for rate limit waits. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a typed GitHub REST API client with authentication, rate
// limiting, pagination, and structured error handling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       authenticator
	rateLimit  *rateLimitTracker
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient creates a GitHub API client from the given configuration.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}

	hasToken := config.Token != ""
	hasCredential := config.Credential != nil
	if hasToken && hasCredential {
		return nil, fmt.Errorf("github: cannot configure both Token and Credential")
	}
	if !hasToken && !hasCredential {
		return nil, fmt.Errorf("github: no authentication configured (set Token or Credential)")
	}

	var auth authenticator
	if hasCredential {
		auth = &credentialAuth{credential: config.Credential}
	} else {
		auth = newTokenAuth(config.Token)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		auth:       auth,
		rateLimit:  newRateLimitTracker(clk),
		clock:      clk,
		logger:     logger,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (client *Client) BaseURL() string {
	return client.baseURL
}

// do executes an authenticated request against a path relative to the
// base URL. requestBody is JSON-encoded when non-nil. Non-2xx
// responses become *APIError; a rate-limited response is retried once
// after the advertised backoff.
func (client *Client) do(ctx context.Context, method, path string, requestBody any) ([]byte, http.Header, error) {
	return client.doWithRetry(ctx, method, path, requestBody, false)
}

func (client *Client) doWithRetry(ctx context.Context, method, path string, requestBody any, isRetry bool) ([]byte, http.Header, error) {
	response, err := client.doRaw(ctx, method, client.baseURL+path, requestBody)
	if err != nil {
		return nil, nil, err
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("github: reading response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		if !isRetry && isRateLimitedResponse(response.StatusCode, body) {
			retryDuration := client.rateLimit.retryAfter(response.Header)
			if retryDuration > 0 {
				client.logger.Info("rate limited, backing off",
					"duration", retryDuration,
					"method", method,
					"path", path,
				)

				select {
				case <-client.clock.After(retryDuration):
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				}

				return client.doWithRetry(ctx, method, path, requestBody, true)
			}
		}

		return nil, nil, parseAPIErrorFromBody(response.StatusCode, body)
	}

	return body, response.Header, nil
}

// doRaw executes a request with authentication and rate limit waiting
// and returns the unparsed response. The caller closes the body.
func (client *Client) doRaw(ctx context.Context, method, url string, requestBody any) (*http.Response, error) {
	if err := client.rateLimit.wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("github: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}

	authHeader, err := client.auth.AuthorizationHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("github: authentication: %w", err)
	}
	request.Header.Set("Authorization", authHeader)
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	request.Header.Set("User-Agent", "workflow-agent/"+version.Short())
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("github: %s %s: %w", method, url, err)
	}

	client.rateLimit.update(response.Header)

	return response, nil
}

// get decodes a single JSON object from a GET request.
func (client *Client) get(ctx context.Context, path string, result any) error {
	body, _, err := client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}

// post sends a JSON body and decodes the JSON response when result is
// non-nil.
func (client *Client) post(ctx context.Context, path string, requestBody any, result any) error {
	return client.send(ctx, http.MethodPost, path, requestBody, result)
}

// put is post with PUT.
func (client *Client) put(ctx context.Context, path string, requestBody any, result any) error {
	return client.send(ctx, http.MethodPut, path, requestBody, result)
}

// patch is post with PATCH.
func (client *Client) patch(ctx context.Context, path string, requestBody any, result any) error {
	return client.send(ctx, http.MethodPatch, path, requestBody, result)
}

func (client *Client) send(ctx context.Context, method, path string, requestBody any, result any) error {
	body, _, err := client.do(ctx, method, path, requestBody)
	if err != nil {
		return err
	}
	if result != nil && len(body) > 0 {
		return json.Unmarshal(body, result)
	}
	return nil
}

// list creates a PageIterator for an endpoint that returns a bare JSON
// array.
func list[T any](client *Client, path string) *PageIterator[T] {
	return &PageIterator[T]{
		client:  client,
		nextURL: client.baseURL + path,
		decode:  decodeArray[T],
	}
}

// parseAPIError reads a GitHub API error from an HTTP response.
func parseAPIError(response *http.Response) *APIError {
	body, _ := netutil.ReadResponse(response.Body)
	return parseAPIErrorFromBody(response.StatusCode, body)
}

// parseAPIErrorFromBody parses a GitHub API error from a status code
// and response body.
func parseAPIErrorFromBody(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wireError struct {
		Message          string            `json:"message"`
		DocumentationURL string            `json:"documentation_url"`
		Errors           []ValidationError `json:"errors"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
		apiError.Errors = wireError.Errors
	} else {
		apiError.Message = strings.TrimSpace(string(body))
	}

	return apiError
}
