package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/asgardtech/pathsec/pkg/pathsec"
)

// Summary is the display form of any engine result
type Summary struct {
	// OK is false for rejected or altered input
	OK      bool
	Verdict string
	Reason  pathsec.Reason
	Detail  string
	Output  string
	Removed []pathsec.Removal
}

// Summarize flattens an engine result, by value or pointer
func Summarize(result interface{}) Summary {
	switch r := result.(type) {
	case *pathsec.ValidationResult:
		return Summarize(*r)
	case *pathsec.TraversalResult:
		return Summarize(*r)
	case *pathsec.SanitizedResult:
		return Summarize(*r)
	case *pathsec.ProjectNameResult:
		return Summarize(*r)

	case pathsec.ValidationResult:
		s := Summary{OK: r.Valid, Verdict: "valid", Reason: r.Reason, Detail: r.Detail}
		if !r.Valid {
			s.Verdict = "invalid"
		}
		return s
	case pathsec.TraversalResult:
		s := Summary{OK: !r.IsTraversal, Verdict: "clean"}
		if r.IsTraversal {
			s.Verdict = "traversal"
			s.Reason = r.Reason
			s.Detail = r.Reason.Describe()
		}
		return s
	case pathsec.SanitizedResult:
		s := Summary{OK: !r.Changed, Verdict: "unchanged", Output: r.Sanitized, Removed: r.Removed}
		if r.Changed {
			s.Verdict = "sanitized"
		}
		return s
	case pathsec.ProjectNameResult:
		s := Summary{OK: r.Valid, Verdict: "valid", Reason: r.Reason, Output: r.Sanitized, Removed: r.Removed}
		if !r.Valid {
			s.Verdict = "sanitized"
			s.Detail = r.Reason.Describe()
		}
		return s
	default:
		return Summary{Verdict: fmt.Sprintf("%v", result)}
	}
}

// Verdict colors a verdict label green when ok and red otherwise
func Verdict(s Summary, noColor bool) string {
	c := color.New(color.FgGreen, color.Bold)
	if !s.OK {
		c = color.New(color.FgRed, color.Bold)
	}
	if noColor {
		c.DisableColor()
	}
	return c.Sprint(s.Verdict)
}

// RenderResult writes a single result as a key-value table
func RenderResult(w io.Writer, op, input string, result interface{}, noColor bool) {
	s := Summarize(result)

	t := NewKeyValueTable(w, noColor)
	t.AddRow("operation", op)
	t.AddRow("input", fmt.Sprintf("%q", input))
	t.AddRow("verdict", Verdict(s, noColor))
	if s.Reason != "" {
		t.AddRow("reason", string(s.Reason))
	}
	if s.Detail != "" {
		t.AddRow("detail", s.Detail)
	}
	if hasOutput(result) {
		t.AddRow("output", fmt.Sprintf("%q", s.Output))
	}
	for _, r := range s.Removed {
		t.AddRow("removed", fmt.Sprintf("%q (%s)", r.Element, r.Reason))
	}
	t.Render()
}

// RenderResults writes one table row per input
func RenderResults(w io.Writer, inputs []string, results []interface{}, noColor bool) {
	output := len(results) > 0 && hasOutput(results[0])

	headers := []string{"INPUT", "VERDICT", "REASON"}
	if output {
		headers = append(headers, "OUTPUT")
	}
	t := NewTable(w, headers, noColor)
	for i, result := range results {
		s := Summarize(result)
		row := []string{fmt.Sprintf("%q", inputs[i]), Verdict(s, noColor), string(s.Reason)}
		if output {
			row = append(row, fmt.Sprintf("%q", s.Output))
		}
		t.AddRow(row...)
	}
	t.Render()
}

// Counts tallies how many results were accepted unchanged
func Counts(results []interface{}) (ok, flagged int) {
	for _, r := range results {
		if Summarize(r).OK {
			ok++
		} else {
			flagged++
		}
	}
	return ok, flagged
}

func hasOutput(result interface{}) bool {
	switch result.(type) {
	case pathsec.SanitizedResult, *pathsec.SanitizedResult, pathsec.ProjectNameResult, *pathsec.ProjectNameResult:
		return true
	default:
		return false
	}
}
