// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sudden-network/workflow-agent/lib/netutil"
)

// PageIterator lazily fetches pages of a paginated endpoint. Next
// returns nil, nil once every page has been consumed.
//
// The iterator is not safe for concurrent use.
type PageIterator[T any] struct {
	client  *Client
	nextURL string
	done    bool
	decode  func(body []byte) ([]T, error)
}

// Next fetches the next page.
func (iterator *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if iterator.done || iterator.nextURL == "" {
		return nil, nil
	}

	response, err := iterator.client.doRaw(ctx, http.MethodGet, iterator.nextURL, nil)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, parseAPIError(response)
	}

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("github: reading page: %w", err)
	}
	items, err := iterator.decode(body)
	if err != nil {
		return nil, fmt.Errorf("github: decoding page: %w", err)
	}

	iterator.nextURL = parseLinkNext(response.Header.Get("Link"))
	if iterator.nextURL == "" {
		iterator.done = true
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Collect fetches all remaining pages and concatenates their items.
func (iterator *PageIterator[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for {
		items, err := iterator.Next(ctx)
		if err != nil {
			return all, err
		}
		if items == nil {
			return all, nil
		}
		all = append(all, items...)
	}
}

func decodeArray[T any](body []byte) ([]T, error) {
	var items []T
	err := json.Unmarshal(body, &items)
	return items, err
}

// listEnvelope creates a PageIterator for endpoints that wrap each page
// in an object, such as {"total_count": 3, "artifacts": [...]}.
func listEnvelope[T any](client *Client, path, field string) *PageIterator[T] {
	return &PageIterator[T]{
		client:  client,
		nextURL: client.baseURL + path,
		decode: func(body []byte) ([]T, error) {
			var envelope map[string]json.RawMessage
			if err := json.Unmarshal(body, &envelope); err != nil {
				return nil, err
			}
			raw, ok := envelope[field]
			if !ok {
				return nil, fmt.Errorf("response has no %q field", field)
			}
			return decodeArray[T](raw)
		},
	}
}

// parseLinkNext extracts the rel="next" URL from an RFC 5988 Link
// header, or "" when there is none.
//
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, parameters, found := strings.Cut(strings.TrimSpace(part), ";")
		if !found || !strings.Contains(parameters, `rel="next"`) {
			continue
		}
		target = strings.TrimSpace(target)
		if strings.HasPrefix(target, "<") && strings.HasSuffix(target, ">") {
			return target[1 : len(target)-1]
		}
	}
	return ""
}
