package pathsec

import (
	"fmt"
	"strings"
)

// filenameChecks are the path checks that also apply to a single name
var filenameChecks = []pathCheck{
	checkWhitespace,
	checkProtocol,
	checkEncoding,
	checkUnicode,
}

// ValidateFilename reports whether name is safe as a single file name
// component: no separators, no "." or "..", no control bytes, no encoding or
// Unicode tricks, no trailing dot or space, no stream syntax and not a
// reserved device name. Unlike SanitizeFilename it never rewrites the input.
func (e *Engine) ValidateFilename(name string) ValidationResult {
	switch {
	case name == "":
		return invalid(ReasonEmpty, "filename is empty")
	case len(name) > e.rules.MaxFilenameLength:
		return invalid(ReasonTooLong,
			fmt.Sprintf("filename is %d bytes (max %d)", len(name), e.rules.MaxFilenameLength))
	}

	n := e.Normalize(name)
	for _, s := range []string{name, n.Text} {
		if nul, ctrl := hasControlByte(s); nul {
			return invalid(ReasonNullByte, "filename contains a null byte")
		} else if ctrl {
			return invalid(ReasonControlChar, "filename contains a control character")
		}
	}
	if n.Exhausted {
		return invalid(ReasonExcessiveEncoding, "filename: "+ReasonExcessiveEncoding.Describe())
	}

	for _, check := range filenameChecks {
		if reason, detail := check(e, name, n); reason != "" {
			return invalid(reason, detail)
		}
	}

	if strings.ContainsAny(name, `/\`) || strings.Contains(n.Text, "/") {
		return invalid(ReasonPathSeparator, "filename contains a path separator")
	}
	switch {
	case n.Text == "..":
		return invalid(ReasonDotDot, "filename is a parent directory reference")
	case n.Text == ".":
		return invalid(ReasonDotSegment, "filename is a current directory reference")
	case e.rules.DotVariants && isDotVariant(n.Text):
		return invalid(ReasonDotVariant, fmt.Sprintf("filename %q collapses to a dot reference", name))
	}

	for _, r := range n.Text {
		if isControl(r) {
			return invalid(ReasonControlChar, fmt.Sprintf("filename contains %U", r))
		}
	}
	if strings.HasSuffix(n.Text, ".") || strings.HasSuffix(n.Text, " ") {
		return invalid(ReasonTrailingDotOrSpace, "filename ends with a dot or space")
	}
	if e.rules.WindowsSemantics && strings.ContainsRune(n.Text, ':') {
		return invalid(ReasonAlternateDataStream, "filename uses stream syntax")
	}
	for _, r := range n.Text {
		if e.rules.IsIllegal(r) {
			return invalid(ReasonIllegalCharacter, fmt.Sprintf("filename contains %q", r))
		}
	}
	if e.rules.IsReserved(n.Text) {
		return invalid(ReasonReservedName, fmt.Sprintf("filename %q is a reserved device name", name))
	}
	return valid()
}
