// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the top-level error description from GitHub.
	Message string

	// DocumentationURL points to the relevant API documentation.
	DocumentationURL string

	// Errors contains field-level validation failures, present on 422
	// responses.
	Errors []ValidationError
}

// ValidationError describes one field-level failure from a 422
// response. GitHub sometimes sends bare strings in the errors array;
// those land in Message.
type ValidationError struct {
	Resource string `json:"resource"`
	Code     string `json:"code"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// UnmarshalJSON accepts both the object form and the bare string form.
func (validationError *ValidationError) UnmarshalJSON(data []byte) error {
	var message string
	if json.Unmarshal(data, &message) == nil {
		*validationError = ValidationError{Message: message}
		return nil
	}
	type plain ValidationError
	return json.Unmarshal(data, (*plain)(validationError))
}

func (err *APIError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "github: HTTP %d: %s", err.StatusCode, err.Message)
	for _, validationError := range err.Errors {
		detail := validationError.Message
		if detail == "" {
			detail = validationError.Code
		}
		if validationError.Resource == "" && validationError.Field == "" {
			fmt.Fprintf(&builder, "; %s", detail)
			continue
		}
		fmt.Fprintf(&builder, "; %s.%s: %s", validationError.Resource, validationError.Field, detail)
	}
	return builder.String()
}

func statusOf(err error) int {
	var apiError *APIError
	if errors.As(err, &apiError) {
		return apiError.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 Not Found response.
func IsNotFound(err error) bool {
	return statusOf(err) == 404
}

// IsForbidden reports whether err is a 401 or a non-rate-limit 403
// response: the credential is missing a permission or scope.
func IsForbidden(err error) bool {
	status := statusOf(err)
	return status == 401 || (status == 403 && !IsRateLimited(err))
}

// IsGone reports whether err is a 410 Gone response. GitHub answers
// 410 for artifacts whose retention has lapsed.
func IsGone(err error) bool {
	return statusOf(err) == 410
}

// IsRateLimited reports whether err is a rate limit response. GitHub
// returns 403 for the primary limit and 429 for secondary limits.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.StatusCode == 429 || (apiError.StatusCode == 403 && isRateLimitMessage(apiError.Message))
}

// IsValidationFailed reports whether err is a 422 response.
func IsValidationFailed(err error) bool {
	return statusOf(err) == 422
}

// IsConflict reports whether err is a 409 Conflict response.
func IsConflict(err error) bool {
	return statusOf(err) == 409
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	status := statusOf(err)
	return status >= 500 && status <= 599
}

func isRateLimitedResponse(statusCode int, body []byte) bool {
	return statusCode == 429 || (statusCode == 403 && isRateLimitMessage(string(body)))
}

// isRateLimitMessage distinguishes a rate-limit 403 from a permission
// 403 by GitHub's message text.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "abuse detection")
}
