package pathsec

import (
	"fmt"
	"strings"
)

// reservedProjectSuffix is appended to a project name that collides with a
// reserved device name.
const reservedProjectSuffix = "_project"

func isProjectChar(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
		c == '-' || c == '_'
}

// ValidateProjectName checks name against the project identifier allow-list:
// ASCII letters, digits, '-' and '_', no leading or trailing '-' or '_', at
// most the rule table's project name length, and not a reserved name. Names
// carrying path syntax are rejected outright rather than rewritten.
func (e *Engine) ValidateProjectName(name string) ValidationResult {
	switch {
	case name == "":
		return invalid(ReasonEmpty, "project name is empty")
	case len(name) > e.rules.MaxProjectNameLength:
		return invalid(ReasonTooLong,
			fmt.Sprintf("project name is %d bytes (max %d)", len(name), e.rules.MaxProjectNameLength))
	case strings.Contains(name, ".."):
		return invalid(ReasonDotDot, "project name contains '..'")
	case strings.ContainsAny(name, `/\`):
		return invalid(ReasonPathSeparator, "project name contains a path separator")
	}

	for _, r := range name {
		if e.rules.IsIllegal(r) || isControl(r) {
			return invalid(ReasonIllegalCharacter, fmt.Sprintf("project name contains %q", r))
		}
	}
	for i := 0; i < len(name); i++ {
		if !isProjectChar(name[i]) {
			return invalid(ReasonDisallowedCharacter,
				"project name may only contain letters, digits, '-' and '_'")
		}
	}
	if first, last := name[0], name[len(name)-1]; first == '-' || first == '_' || last == '-' || last == '_' {
		return invalid(ReasonInvalidBoundary, "project name cannot start or end with '-' or '_'")
	}
	if e.rules.IsReserved(name) {
		return invalid(ReasonReservedName, fmt.Sprintf("project name %q is a reserved name", name))
	}
	return valid()
}

// SanitizeProjectName strips everything outside the project allow-list and
// returns a name that always passes ValidateProjectName. The validity of the
// input itself is reported alongside.
func (e *Engine) SanitizeProjectName(name string) ProjectNameResult {
	check := e.ValidateProjectName(name)
	res := ProjectNameResult{Valid: check.Valid, Reason: check.Reason}

	var b strings.Builder
	var dropped strings.Builder
	flush := func() {
		if dropped.Len() > 0 {
			res.Removed = append(res.Removed, Removal{Element: dropped.String(), Reason: ReasonDisallowedCharacter})
			dropped.Reset()
		}
	}
	for i := 0; i < len(name); i++ {
		if isProjectChar(name[i]) {
			flush()
			b.WriteByte(name[i])
			continue
		}
		dropped.WriteByte(name[i])
	}
	flush()

	out := trimProjectBoundary(b.String(), &res)
	if len(out) > e.rules.MaxProjectNameLength {
		res.Removed = append(res.Removed, truncation(len(out)-e.rules.MaxProjectNameLength))
		out = trimProjectBoundary(out[:e.rules.MaxProjectNameLength], &res)
	}
	if out != "" && e.rules.IsReserved(out) {
		res.Removed = append(res.Removed, Removal{Element: out, Reason: ReasonReservedName})
		out += reservedProjectSuffix
		if len(out) > e.rules.MaxProjectNameLength {
			out = ""
		}
	}
	if out == "" {
		out = e.cfg.ProjectPlaceholder
	}

	res.Sanitized = out
	res.Changed = out != name
	return res
}

func trimProjectBoundary(s string, res *ProjectNameResult) string {
	trimmed := strings.Trim(s, "-_")
	if trimmed != s {
		res.Removed = append(res.Removed, Removal{Element: "-_", Reason: ReasonInvalidBoundary})
	}
	return trimmed
}
