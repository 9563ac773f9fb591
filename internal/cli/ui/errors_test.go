package ui

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatMessage(t *testing.T) {
	out := FormatMessage(MessageOptions{
		Level:        LevelError,
		Context:      "unknown operation",
		Problem:      "validate-pth",
		Consequence:  "nothing was checked",
		Suggestions:  []string{"validate-path"},
		HelpCommands: []string{"List operations: pathsec --help"},
		NoColor:      true,
	})

	for _, want := range []string{
		"✗ UNKNOWN OPERATION: validate-pth",
		"nothing was checked",
		"Did you mean: validate-path?",
		"→ List operations: pathsec --help",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFormatMessageLevels(t *testing.T) {
	if out := Warning("cache unavailable", true); !strings.HasPrefix(out, "! cache unavailable") {
		t.Errorf("unexpected warning %q", out)
	}
	info := FormatMessage(MessageOptions{Level: LevelInfo, Problem: "hello", NoColor: true})
	if !strings.HasPrefix(info, "i hello") {
		t.Errorf("unexpected info %q", info)
	}
}

func TestUnknownOperationError(t *testing.T) {
	known := []string{"validate-path", "detect-traversal", "sanitize-path"}
	out := UnknownOperationError("sanitize-pth", known, true)
	if !strings.Contains(out, "Did you mean: sanitize-path?") {
		t.Errorf("expected suggestion, got:\n%s", out)
	}

	out = UnknownOperationError("zzz", known, true)
	if strings.Contains(out, "Did you mean") {
		t.Errorf("expected no suggestion, got:\n%s", out)
	}
}

func TestConfigError(t *testing.T) {
	out := ConfigError(errors.New("invalid config: engine.platform=beos"), true)
	if !strings.Contains(out, "CONFIGURATION ERROR: invalid config: engine.platform=beos") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "PATHSEC_") {
		t.Errorf("expected env hint, got:\n%s", out)
	}
}

func TestFormatSuccess(t *testing.T) {
	if got := FormatSuccess("done", true); got != "✓ done" {
		t.Errorf("expected '✓ done', got %q", got)
	}
}
