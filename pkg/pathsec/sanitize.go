package pathsec

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// maxSanitizePasses bounds the convergence loop. Realistic inputs settle
	// after one or two passes.
	maxSanitizePasses = 8
	// maxExtensionLength is the longest extension kept when truncating a filename
	maxExtensionLength = 32
)

type sanitizePass func(string) (string, []Removal)

// converge reapplies pass until its output stops changing, which is what
// makes every sanitizer idempotent.
func converge(out string, removed []Removal, pass sanitizePass) (string, []Removal, bool) {
	for i := 0; i < maxSanitizePasses; i++ {
		next, more := pass(out)
		if next == out {
			return out, removed, true
		}
		out = next
		removed = append(removed, more...)
	}
	return out, removed, false
}

// SanitizePath rewrites raw into a safe relative path, or an absolute one
// when the input was absolute and AllowAbsolute is set. Parent references,
// empty and "." components, control bytes and invisible characters are
// dropped. The function never fails and is idempotent.
func (e *Engine) SanitizePath(raw string) SanitizedResult {
	out, removed := e.sanitizePathOnce(raw)
	out, removed, ok := converge(out, removed, e.sanitizePathOnce)
	if !ok {
		// Residual escapes keep producing new text; drop every '%' so
		// decoding has nothing left to work on.
		removed = append(removed, Removal{Element: "%", Reason: ReasonEscapeResidue})
		out, removed, _ = converge(strings.ReplaceAll(out, "%", ""), removed, e.sanitizePathOnce)
	}
	return SanitizedResult{Sanitized: out, Changed: out != raw, Removed: removed}
}

func (e *Engine) sanitizePathOnce(raw string) (string, []Removal) {
	var removed []Removal

	s := raw
	if len(s) > e.cfg.MaxInputSize {
		removed = append(removed, truncation(len(s)-e.cfg.MaxInputSize))
		s = s[:e.cfg.MaxInputSize]
	}

	n := e.Normalize(s)
	parts := strings.Split(strings.TrimPrefix(n.Text, n.Drive), "/")
	segs := make([]string, 0, len(parts))
	for i, part := range parts {
		switch part {
		case "":
			if i != 0 && i != len(parts)-1 {
				removed = append(removed, Removal{Element: part, Reason: ReasonEmptySegment})
			}
			continue
		case ".":
			removed = append(removed, Removal{Element: part, Reason: ReasonDotSegment})
			continue
		case "..":
			removed = append(removed, Removal{Element: part, Reason: ReasonDotDot})
			continue
		}

		if n.Exhausted && strings.Contains(part, "%") {
			removed = append(removed, Removal{Element: "%", Reason: ReasonEscapeResidue})
			part = strings.ReplaceAll(part, "%", "")
		}
		seg, dropped := cleanSegment(part)
		removed = append(removed, dropped...)

		switch {
		case seg == "":
			continue
		case seg == ".":
			removed = append(removed, Removal{Element: seg, Reason: ReasonDotSegment})
			continue
		case seg == "..":
			removed = append(removed, Removal{Element: seg, Reason: ReasonDotDot})
			continue
		case e.rules.DotVariants && isDotVariant(seg):
			removed = append(removed, Removal{Element: seg, Reason: ReasonDotVariant})
			continue
		}
		segs = append(segs, seg)
	}

	prefix := ""
	if n.Absolute {
		if e.cfg.AllowAbsolute {
			prefix = n.Drive + e.rules.Separator
		} else {
			removed = append(removed, Removal{Element: n.Drive + "/", Reason: ReasonAbsolutePath})
		}
	}
	// A relative result must not start with something that reads as a drive.
	if prefix == "" && len(segs) > 0 {
		if _, ok := drivePrefix(segs[0]); ok {
			removed = append(removed, Removal{Element: ":", Reason: ReasonAbsolutePath})
			segs[0] = segs[0][:1] + "_" + segs[0][2:]
		}
	}

	out, cut := joinWithin(prefix, segs, e.rules.Separator, e.rules.MaxPathLength)
	if cut > 0 {
		removed = append(removed, truncation(cut))
	}
	if out == "" {
		out = e.cfg.Placeholder
	}
	return out, removed
}

// cleanSegment strips invalid UTF-8, control characters and invisible
// characters from a single path component.
func cleanSegment(seg string) (string, []Removal) {
	var removed []Removal
	out := runeFilter(seg, func(r rune, chunk string) bool {
		switch {
		case r == utf8.RuneError && len(chunk) == 1:
			removed = append(removed, Removal{Element: fmt.Sprintf(`\x%02x`, chunk[0]), Reason: ReasonInvalidUTF8})
		case r == 0:
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonNullByte})
		case isControl(r):
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonControlChar})
		case isInvisible(r):
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonInvisibleUnicode})
		default:
			return false
		}
		return true
	})
	return out, removed
}

// joinWithin joins segments behind prefix, dropping trailing segments until
// the result fits in max bytes. It returns the number of bytes cut.
func joinWithin(prefix string, segs []string, sep string, max int) (string, int) {
	full := prefix + strings.Join(segs, sep)
	if len(full) <= max {
		return full, 0
	}
	for len(segs) > 1 {
		segs = segs[:len(segs)-1]
		if out := prefix + strings.Join(segs, sep); len(out) <= max {
			return out, len(full) - len(out)
		}
	}
	out := prefix + truncateRunes(segs[0], max-len(prefix))
	return out, len(full) - len(out)
}

func truncation(bytes int) Removal {
	return Removal{Element: fmt.Sprintf("%d bytes", bytes), Reason: ReasonTruncated}
}

// SanitizeFilename rewrites raw into a single safe file name component.
// Characters illegal under the rule table become '_', control and invisible
// characters are removed, whitespace runs collapse to one space, reserved
// device names are suffixed and the result is cut to the filename limit
// keeping the extension when it fits.
func (e *Engine) SanitizeFilename(raw string) SanitizedResult {
	out, removed := e.sanitizeFilenameOnce(raw)
	out, removed, _ = converge(out, removed, e.sanitizeFilenameOnce)
	return SanitizedResult{Sanitized: out, Changed: out != raw, Removed: removed}
}

func (e *Engine) sanitizeFilenameOnce(raw string) (string, []Removal) {
	var removed []Removal

	s := raw
	if len(s) > e.cfg.MaxInputSize {
		s = truncateRunes(s, e.cfg.MaxInputSize)
		removed = append(removed, truncation(len(raw)-len(s)))
	}
	s, _ = foldCompat(s)

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		chunk := s[i : i+size]
		i += size

		switch {
		case r == utf8.RuneError && size == 1:
			removed = append(removed, Removal{Element: fmt.Sprintf(`\x%02x`, chunk[0]), Reason: ReasonInvalidUTF8})
		case r == 0:
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonNullByte})
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case isControl(r):
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonControlChar})
		case isInvisible(r):
			removed = append(removed, Removal{Element: fmt.Sprintf("%U", r), Reason: ReasonInvisibleUnicode})
		case r == '\\' || e.rules.IsIllegal(r):
			removed = append(removed, Removal{Element: chunk, Reason: ReasonIllegalCharacter})
			b.WriteByte('_')
		default:
			b.WriteString(chunk)
		}
	}
	s = b.String()

	if collapsed := strings.Join(strings.Fields(s), " "); collapsed != s {
		removed = append(removed, Removal{Element: " ", Reason: ReasonRepeatedWhitespace})
		s = collapsed
	}
	if e.rules.WindowsSemantics {
		if trimmed := strings.TrimRight(s, ". "); trimmed != s {
			removed = append(removed, Removal{Element: s[len(trimmed):], Reason: ReasonTrailingDotOrSpace})
			s = trimmed
		}
	}
	switch s {
	case ".":
		removed = append(removed, Removal{Element: s, Reason: ReasonDotSegment})
		s = ""
	case "..":
		removed = append(removed, Removal{Element: s, Reason: ReasonDotDot})
		s = ""
	}

	if s != "" && e.rules.IsReserved(s) {
		removed = append(removed, Removal{Element: s, Reason: ReasonReservedName})
		s = suffixReserved(s)
	}
	if len(s) > e.rules.MaxFilenameLength {
		cut := truncateFilename(s, e.rules.MaxFilenameLength)
		removed = append(removed, truncation(len(s)-len(cut)))
		s = cut
	}
	if s == "" {
		s = e.cfg.Placeholder
	}
	return s, removed
}

// suffixReserved appends '_' to the base name so "CON.txt" becomes "CON_.txt"
func suffixReserved(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i] + "_" + name[i:]
	}
	return name + "_"
}

// truncateFilename cuts name to max bytes, keeping a short extension intact
func truncateFilename(name string, max int) string {
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		if n := len(name) - i; n <= maxExtensionLength && n < max {
			ext = name[i:]
		}
	}
	return truncateRunes(name[:len(name)-len(ext)], max-len(ext)) + ext
}
