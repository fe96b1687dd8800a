// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithFileSink(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: LevelDebug, Service: "testsvc", LogDir: dir})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hello", "k", "v")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	// Close twice must be safe.
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "testsvc_") {
		t.Errorf("unexpected log file name %q", entries[0].Name())
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing record, got: %s", data)
	}
}

func TestNewWithoutLogDir(t *testing.T) {
	logger, err := New(Config{Level: LevelInfo})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.file != nil {
		t.Error("expected no file sink")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
