package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run([]string{}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "Usage: audioloop") {
		t.Fatalf("expected usage in stdout")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run([]string{"nope"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestHelpRun(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run([]string{"help", "run"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "audioloop run") {
		t.Fatalf("expected run usage in stdout")
	}
}

func TestHelpUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run([]string{"help", "nope"}, &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for unknown help topic")
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Fatalf("expected unknown command notice in stderr")
	}
}
