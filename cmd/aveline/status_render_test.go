package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	line := renderStatusLine("Library", statusOK, "3 book(s)", false)
	if line != "  Library:             [OK] 3 book(s)" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	line := renderStatusLine("Aveline", statusWarn, "Not running", true)
	if !strings.HasPrefix(line, ansiYellow) || !strings.HasSuffix(line, ansiReset) {
		t.Fatalf("expected yellow line, got %q", line)
	}
}

func TestStatusKindFromSeverity(t *testing.T) {
	tests := map[string]statusKind{
		"ok":    statusOK,
		" WARN": statusWarn,
		"error": statusError,
		"info":  statusInfo,
		"":      statusInfo,
	}
	for severity, want := range tests {
		if got := statusKindFromSeverity(severity); got != want {
			t.Errorf("statusKindFromSeverity(%q) = %v, want %v", severity, got, want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers must never be colorized")
	}
}

func TestRenderTableWrapsAndPads(t *testing.T) {
	out := renderTable([]column{{header: "Title"}, {header: "Count", right: true}}, [][]string{{"Dune"}, {"Emma", "2"}})
	if !strings.Contains(out, "Title") || !strings.Contains(out, "Emma") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected table %q", out)
	}
}
