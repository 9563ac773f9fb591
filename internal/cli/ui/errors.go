package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// MessageOptions configures a formatted error, warning or info message
type MessageOptions struct {
	Level        Level
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatMessage renders a message with optional suggestions and help commands
//
// Example output:
//
//	✗ UNKNOWN OPERATION: validate-pth
//	   Did you mean: validate-path?
//
//	   → List operations: pathsec --help
func FormatMessage(opts MessageOptions) string {
	var b strings.Builder

	var head *color.Color
	var symbol string
	switch opts.Level {
	case LevelWarning:
		head, symbol = color.New(color.FgYellow, color.Bold), "!"
	case LevelInfo:
		head, symbol = color.New(color.FgCyan, color.Bold), "i"
	default:
		head, symbol = color.New(color.FgRed, color.Bold), "✗"
	}
	body := color.New(color.FgWhite)
	hint := color.New(color.FgCyan)
	if opts.NoColor {
		head.DisableColor()
		body.DisableColor()
		hint.DisableColor()
	}

	if opts.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		body.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		body.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			hint.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteMessage writes a formatted message to w
func WriteMessage(w io.Writer, opts MessageOptions) {
	fmt.Fprint(w, FormatMessage(opts))
}

// FormatSuccess formats a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// UnknownOperationError reports an operation name that does not exist,
// suggesting the closest known names
func UnknownOperationError(name string, known []string, noColor bool) string {
	return FormatMessage(MessageOptions{
		Level:        LevelError,
		Context:      "unknown operation",
		Problem:      name,
		Suggestions:  Suggest(name, known, 3),
		HelpCommands: []string{"List operations: pathsec --help"},
		NoColor:      noColor,
	})
}

// ConfigError reports a configuration that failed to load
func ConfigError(err error, noColor bool) string {
	return FormatMessage(MessageOptions{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		HelpCommands: []string{
			"Show effective config: pathsec config",
			"Environment overrides use the PATHSEC_ prefix, e.g. PATHSEC_ENGINE_PLATFORM=posix",
		},
		NoColor: noColor,
	})
}

// Warning formats a warning message
func Warning(message string, noColor bool) string {
	return FormatMessage(MessageOptions{Level: LevelWarning, Problem: message, NoColor: noColor})
}
