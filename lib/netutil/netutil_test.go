// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestReadLimited(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		data, err := ReadLimited(strings.NewReader("12345"), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "12345" {
			t.Errorf("got %q, want %q", data, "12345")
		}
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ReadLimited(strings.NewReader("123456"), 5)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("err = %v, want ErrBodyTooLarge", err)
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	var decoded struct {
		Status string `json:"status"`
	}
	if err := DecodeResponse(bytes.NewReader([]byte(`{"status":"ok"}`)), &decoded); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.Status != "ok" {
		t.Errorf("Status = %q, want %q", decoded.Status, "ok")
	}
}

func TestIsLoopbackHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.1.2.3", true},
		{"::1", true},
		{"[::1]", true},
		{"localhost", true},
		{"0.0.0.0", false},
		{"10.0.0.1", false},
		{"example.com", false},
		{"", false},
	}
	for _, test := range tests {
		if got := IsLoopbackHost(test.host); got != test.want {
			t.Errorf("IsLoopbackHost(%q) = %v, want %v", test.host, got, test.want)
		}
	}
}

func TestListenLoopback(t *testing.T) {
	listener, err := ListenLoopback("")
	if err != nil {
		t.Fatalf("ListenLoopback: %v", err)
	}
	defer listener.Close()

	address := listener.Addr().(*net.TCPAddr)
	if !address.IP.IsLoopback() {
		t.Errorf("listener bound to %v, want loopback", address.IP)
	}
	if address.Port == 0 {
		t.Error("listener port is 0")
	}

	if _, err := ListenLoopback("0.0.0.0"); err == nil {
		t.Error("ListenLoopback(0.0.0.0) succeeded, want error")
	}
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{io.EOF, true},
		{fmt.Errorf("read: %w", net.ErrClosed), true},
		{syscall.EPIPE, true},
		{syscall.ECONNRESET, true},
		{errors.New("boom"), false},
	}
	for _, test := range tests {
		if got := IsExpectedCloseError(test.err); got != test.want {
			t.Errorf("IsExpectedCloseError(%v) = %v, want %v", test.err, got, test.want)
		}
	}
}
