// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "testing"

func TestKeyString(t *testing.T) {
	tests := []struct {
		key      Key
		want     string
		wantName string
	}{
		{Key{KindIssue, 42}, "issue-42", "workflow-agent-issue-42"},
		{Key{KindPullRequest, 7}, "pr-7", "workflow-agent-pr-7"},
		{Key{KindIssue, 1000000}, "issue-1000000", "workflow-agent-issue-1000000"},
	}
	for _, test := range tests {
		if got := test.key.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
		if got := test.key.ArtifactName(""); got != test.wantName {
			t.Errorf("ArtifactName(\"\") = %q, want %q", got, test.wantName)
		}
	}
	if got := (Key{KindIssue, 3}).ArtifactName("team-bot"); got != "team-bot-issue-3" {
		t.Errorf("ArtifactName(team-bot) = %q, want team-bot-issue-3", got)
	}
}

func TestKeysNeverCollide(t *testing.T) {
	seen := make(map[string]Key)
	for _, kind := range []Kind{KindIssue, KindPullRequest} {
		for number := 1; number <= 200; number++ {
			key, err := NewKey(kind, number)
			if err != nil {
				t.Fatalf("NewKey(%s, %d): %v", kind, number, err)
			}
			name := key.ArtifactName("")
			if previous, ok := seen[name]; ok {
				t.Fatalf("%v and %v both map to %q", previous, key, name)
			}
			seen[name] = key

			again, _ := NewKey(kind, number)
			if again.ArtifactName("") != name {
				t.Fatalf("key for %s %d is not stable", kind, number)
			}
		}
	}
}

func TestNewKeyRejectsInvalid(t *testing.T) {
	if _, err := NewKey(KindIssue, 0); err == nil {
		t.Error("NewKey accepted number 0")
	}
	if _, err := NewKey(KindPullRequest, -3); err == nil {
		t.Error("NewKey accepted a negative number")
	}
	if _, err := NewKey(Kind("discussion"), 1); err == nil {
		t.Error("NewKey accepted an unknown kind")
	}
}
