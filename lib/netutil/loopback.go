// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// IsLoopbackHost reports whether host is "localhost" or a loopback IP
// literal.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	address, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return false
	}
	return address.IsLoopback()
}

// ListenLoopback listens on an ephemeral TCP port of host, which must be
// a loopback address. An empty host means 127.0.0.1.
func ListenLoopback(host string) (net.Listener, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	if !IsLoopbackHost(host) {
		return nil, fmt.Errorf("refusing to listen on non-loopback host %q", host)
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(strings.Trim(host, "[]"), "0"))
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", host, err)
	}
	return listener, nil
}
