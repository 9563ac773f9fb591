package pathsec

import (
	"fmt"
	"strings"
	"unicode"
)

var protocolSchemes = []string{
	"file://", "file:/",
	"http://", "https://",
	"ftp://", "ftps://", "sftp://",
	"gopher://", "data:", "javascript:",
	"vbscript:", "jar:", "php://",
}

var overlongPatterns = []string{
	"%c0%ae", "%c0%af", "%c1%9c", "%c0%2e", "%e0%80%ae",
}

// pathCheck inspects one class of attack. It returns an empty reason when
// the input passes.
type pathCheck func(e *Engine, raw string, n NormalizedPath) (Reason, string)

// pathChecks run in order and the first failure decides the verdict
var pathChecks = []pathCheck{
	checkTraversal,
	checkProtocol,
	checkEncoding,
	checkUnicode,
	checkSeparators,
	checkSpecialChars,
	checkWindowsNames,
	checkIllegalChars,
	checkWhitespace,
	checkAbsolute,
	checkDenied,
}

// ValidatePath reports whether raw is a safe path. Forward and back slashes
// are equally accepted as separators, so "/srv/data/file.txt" and
// `C:\Users\data\file.txt` are both valid under the default configuration.
func (e *Engine) ValidatePath(raw string) ValidationResult {
	switch {
	case raw == "":
		return invalid(ReasonEmpty, "path is empty")
	case len(raw) > e.cfg.MaxInputSize:
		return invalid(ReasonInputTooLong,
			fmt.Sprintf("input is %d bytes (max %d)", len(raw), e.cfg.MaxInputSize))
	case len(raw) > e.rules.MaxPathLength:
		return invalid(ReasonPathTooLong,
			fmt.Sprintf("path is %d bytes (max %d)", len(raw), e.rules.MaxPathLength))
	}

	n := e.Normalize(raw)
	for _, check := range pathChecks {
		if reason, detail := check(e, raw, n); reason != "" {
			return invalid(reason, detail)
		}
	}
	return valid()
}

func checkTraversal(e *Engine, raw string, n NormalizedPath) (Reason, string) {
	if v := e.detectTraversal(raw, n); v.IsTraversal {
		return v.Reason, "path traversal: " + v.Reason.Describe()
	}
	return "", ""
}

func checkProtocol(_ *Engine, _ string, n NormalizedPath) (Reason, string) {
	lower := strings.ToLower(strings.TrimSpace(n.Text))
	for _, scheme := range protocolSchemes {
		if strings.HasPrefix(lower, scheme) {
			return ReasonProtocolScheme, fmt.Sprintf("protocol scheme %q is not allowed", scheme)
		}
	}
	return "", ""
}

func checkEncoding(_ *Engine, raw string, n NormalizedPath) (Reason, string) {
	lower := strings.ToLower(raw)

	for i := 0; i < len(lower); i++ {
		if _, ok := unicodeEscape(lower[i:]); ok {
			return ReasonUnicodeEscape, fmt.Sprintf("%%u escape %q", lower[i:i+6])
		}
	}
	if i := strings.Index(lower, "&#"); i >= 0 && i+2 < len(lower) {
		if c := lower[i+2]; c == 'x' || ('0' <= c && c <= '9') {
			return ReasonHTMLEntity, "HTML numeric entity in path"
		}
	}
	if n.Overlong {
		return ReasonOverlongUTF8, "overlong UTF-8 sequence in path"
	}
	for _, pattern := range overlongPatterns {
		if strings.Contains(lower, pattern) {
			return ReasonOverlongUTF8, fmt.Sprintf("overlong UTF-8 sequence %q", pattern)
		}
	}
	if i := strings.Index(lower, "%25"); i >= 0 && i+4 < len(lower) && isHex(lower[i+3]) && isHex(lower[i+4]) {
		return ReasonDoubleEncoding, fmt.Sprintf("double encoded sequence %q", lower[i:i+5])
	}
	for _, sep := range []string{"%2f", "%5c"} {
		if strings.Contains(lower, sep) {
			return ReasonEncodedSeparator, fmt.Sprintf("encoded separator %q", sep)
		}
	}
	if strings.Contains(lower, "%2e") {
		return ReasonEncodedDot, `encoded dot "%2e"`
	}
	return "", ""
}

func checkUnicode(_ *Engine, raw string, n NormalizedPath) (Reason, string) {
	for _, s := range []string{raw, n.Text} {
		for _, r := range s {
			if isInvisible(r) {
				return ReasonInvisibleUnicode, fmt.Sprintf("invisible character %U", r)
			}
			if isHomoglyph(r) {
				return ReasonUnicodeHomoglyph, fmt.Sprintf("look-alike character %U", r)
			}
		}
	}
	if n.Folded {
		return ReasonUnicodeHomoglyph, "compatibility characters fold to different text"
	}
	return "", ""
}

func checkSeparators(e *Engine, raw string, _ NormalizedPath) (Reason, string) {
	unified := strings.ReplaceAll(raw, `\`, "/")
	if e.rules.WindowsSemantics {
		switch {
		case strings.HasPrefix(unified, "//?/"), strings.HasPrefix(unified, "//./"),
			strings.HasPrefix(unified, "/??/"):
			return ReasonDevicePath, "device namespace prefix"
		case strings.HasPrefix(strings.ToLower(unified), "/device/"):
			return ReasonDevicePath, "NT device path"
		case strings.HasPrefix(unified, "//"):
			return ReasonUNCPath, "UNC network path"
		}
	}
	if e.cfg.StrictSeparators {
		if strings.Contains(raw, "/") && strings.Contains(raw, `\`) {
			return ReasonMixedSeparators, "path mixes '/' and '\\'"
		}
		if strings.Contains(unified, "//") {
			return ReasonRepeatedSeparator, "path contains an empty component"
		}
	}
	return "", ""
}

func checkSpecialChars(_ *Engine, _ string, n NormalizedPath) (Reason, string) {
	if i := strings.IndexAny(n.Text, "?*"); i >= 0 {
		return ReasonWildcard, fmt.Sprintf("wildcard %q", n.Text[i])
	}
	if i := strings.IndexAny(n.Text, "~$"); i >= 0 {
		return ReasonShellExpansion, fmt.Sprintf("shell expansion character %q", n.Text[i])
	}
	if strings.Contains(n.Text, ";") {
		return ReasonUnusualSeparator, "';' is not a path separator"
	}
	return "", ""
}

func checkWindowsNames(e *Engine, _ string, n NormalizedPath) (Reason, string) {
	if !e.rules.WindowsSemantics {
		return "", ""
	}
	for _, seg := range n.Segments {
		if strings.ContainsRune(seg, ':') {
			return ReasonAlternateDataStream, fmt.Sprintf("component %q uses stream syntax", seg)
		}
		if e.rules.IsReserved(seg) {
			return ReasonReservedName, fmt.Sprintf("component %q is a reserved device name", seg)
		}
		if strings.HasSuffix(seg, ".") || strings.HasSuffix(seg, " ") {
			return ReasonTrailingDotOrSpace, fmt.Sprintf("component %q ends with a dot or space", seg)
		}
	}
	return "", ""
}

func checkIllegalChars(e *Engine, _ string, n NormalizedPath) (Reason, string) {
	for _, seg := range n.Segments {
		for _, r := range seg {
			if r != '/' && r != '\\' && strings.ContainsRune(e.rules.IllegalChars, r) {
				return ReasonIllegalCharacter, fmt.Sprintf("component %q contains %q", seg, r)
			}
		}
	}
	return "", ""
}

func checkWhitespace(_ *Engine, raw string, _ NormalizedPath) (Reason, string) {
	if strings.TrimFunc(raw, unicode.IsSpace) != raw {
		return ReasonSurroundingWhitespace, "path has leading or trailing whitespace"
	}
	if strings.Contains(raw, "  ") {
		return ReasonRepeatedWhitespace, "path contains consecutive spaces"
	}
	return "", ""
}

func checkAbsolute(e *Engine, _ string, n NormalizedPath) (Reason, string) {
	if n.Absolute && !e.cfg.AllowAbsolute {
		return ReasonAbsolutePath, "absolute paths are not allowed"
	}
	return "", ""
}

func checkDenied(e *Engine, _ string, n NormalizedPath) (Reason, string) {
	if len(e.deny) == 0 {
		return "", ""
	}
	target := n.String()
	if e.rules.CaseInsensitive {
		target = strings.ToLower(target)
	}
	for _, d := range e.deny {
		if d.matcher.Match(target) {
			return ReasonDeniedLocation, fmt.Sprintf("path matches denied location %q", d.pattern)
		}
	}
	return "", ""
}
