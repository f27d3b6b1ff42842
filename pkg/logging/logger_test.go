// Copyright (C) 2025 Beacon Labs (eng@beaconhq.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLoggingWritesJSON(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Service: "enforcer",
		LogDir:  dir,
		Quiet:   true,
	})

	logger.Slog().Info("pipeline started", "section_id", "s1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "enforcer_") {
		t.Errorf("log file name %q does not carry the service prefix", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("file log line is not JSON: %v", err)
	}
	if record["msg"] != "pipeline started" {
		t.Errorf("msg = %v, want %q", record["msg"], "pipeline started")
	}
	if record["service"] != "enforcer" {
		t.Errorf("service = %v, want %q", record["service"], "enforcer")
	}
	if record["section_id"] != "s1" {
		t.Errorf("section_id = %v, want %q", record["section_id"], "s1")
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Service: "enforcer",
		LogDir:  dir,
		Level:   slog.LevelWarn,
		Quiet:   true,
	})

	logger.Slog().Info("dropped")
	logger.Slog().Warn("kept")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Error("info record survived a warn-level filter")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn record was filtered out")
	}
}

func TestCloseWithoutFileIsNoop(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got := expandPath("~/logs")
	if got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if expandPath("/var/log") != "/var/log" {
		t.Error("absolute path should be unchanged")
	}
}
