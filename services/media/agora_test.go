// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package media

import (
	"strings"
	"testing"
	"time"
)

const (
	testAppID   = "970CA35de60c44645bbae8a215061b33"
	testAppCert = "5CFd2fd1755d40ecb72977518be15d3b"
)

func fixedBuilder(t *testing.T) *AgoraTokenBuilder {
	t.Helper()
	b, err := NewAgoraTokenBuilder(testAppID, testAppCert)
	if err != nil {
		t.Fatalf("NewAgoraTokenBuilder: %v", err)
	}
	b.now = func() time.Time { return time.Unix(1700000000, 0) }
	b.salt = func() uint32 { return 123456 }
	return b
}

func TestBuildRTCTokenRoundTrip(t *testing.T) {
	b := fixedBuilder(t)

	token, err := b.BuildRTCToken("session-abc", "42", time.Hour)
	if err != nil {
		t.Fatalf("BuildRTCToken: %v", err)
	}
	if !strings.HasPrefix(token, "007") {
		t.Fatalf("token version prefix missing: %q", token[:8])
	}

	parsed, err := parseRTCToken(token)
	if err != nil {
		t.Fatalf("parseRTCToken: %v", err)
	}
	if parsed.AppID != testAppID {
		t.Errorf("app id = %q, want %q", parsed.AppID, testAppID)
	}
	if parsed.Channel != "session-abc" {
		t.Errorf("channel = %q, want session-abc", parsed.Channel)
	}
	if parsed.UID != "42" {
		t.Errorf("uid = %q, want 42", parsed.UID)
	}
	if parsed.IssueTs != 1700000000 {
		t.Errorf("issue ts = %d, want 1700000000", parsed.IssueTs)
	}
	if parsed.Expire != 3600 {
		t.Errorf("expire = %d, want 3600", parsed.Expire)
	}
	if parsed.Salt != 123456 {
		t.Errorf("salt = %d, want 123456", parsed.Salt)
	}
	if len(parsed.Signature) != 32 {
		t.Errorf("signature length = %d, want 32", len(parsed.Signature))
	}
}

func TestBuildRTCTokenDeterministic(t *testing.T) {
	b := fixedBuilder(t)

	t1, err := b.BuildRTCToken("chan", "7", time.Hour)
	if err != nil {
		t.Fatalf("BuildRTCToken: %v", err)
	}
	t2, err := b.BuildRTCToken("chan", "7", time.Hour)
	if err != nil {
		t.Fatalf("BuildRTCToken: %v", err)
	}
	if t1 != t2 {
		t.Error("same inputs produced different tokens")
	}

	t3, err := b.BuildRTCToken("other-chan", "7", time.Hour)
	if err != nil {
		t.Fatalf("BuildRTCToken: %v", err)
	}
	if t1 == t3 {
		t.Error("different channels produced identical tokens")
	}
}

func TestBuildRTCTokenDefaults(t *testing.T) {
	b := fixedBuilder(t)

	token, err := b.BuildRTCToken("chan", "", 0)
	if err != nil {
		t.Fatalf("BuildRTCToken: %v", err)
	}
	parsed, err := parseRTCToken(token)
	if err != nil {
		t.Fatalf("parseRTCToken: %v", err)
	}
	if parsed.UID != "0" {
		t.Errorf("empty uid should default to wildcard 0, got %q", parsed.UID)
	}
	if parsed.Expire != uint32((24 * time.Hour).Seconds()) {
		t.Errorf("zero ttl should default to 24h, got %d", parsed.Expire)
	}
}

func TestBuildRTCTokenValidation(t *testing.T) {
	if _, err := NewAgoraTokenBuilder("", testAppCert); err == nil {
		t.Error("expected error for empty app id")
	}
	b := fixedBuilder(t)
	if _, err := b.BuildRTCToken("", "1", time.Hour); err == nil {
		t.Error("expected error for empty channel")
	}
}

func TestParseRTCTokenRejectsGarbage(t *testing.T) {
	cases := []string{"", "006abc", "007!!!not-base64!!!", "007aGVsbG8="}
	for _, c := range cases {
		if _, err := parseRTCToken(c); err == nil {
			t.Errorf("parseRTCToken(%q) accepted garbage", c)
		}
	}
}
