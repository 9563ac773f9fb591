package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"INPUT", "VERDICT"}, true)
	table.AddRow("café", "valid")
	table.AddRow("../x", "invalid", "extra")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "INPUT  VERDICT" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "─────  ───────" {
		t.Errorf("unexpected separator %q", lines[1])
	}
	if lines[2] != "café   valid" {
		t.Errorf("expected rune-aligned row, got %q", lines[2])
	}
	if strings.Contains(buf.String(), "extra") {
		t.Error("expected cells beyond the headers to be dropped")
	}
}

func TestTableWithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, nil, true).Render()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewKeyValueTable(&buf, true)
	table.AddRow("platform", "portable")
	table.AddRow("port", "8080")
	table.Render()

	want := "platform: portable\nport:     8080\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Engine", true)
	if buf.String() != "Engine\n──────\n" {
		t.Errorf("unexpected header %q", buf.String())
	}
}
