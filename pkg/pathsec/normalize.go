package pathsec

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxDecodeRounds bounds iterated percent-decoding. Input that still
// decodes after this many rounds is treated as an evasion attempt.
const DefaultMaxDecodeRounds = 5

// NormalizedPath is the canonical, separator-agnostic view of a raw input.
// Normalization never fails; malformed escapes and invalid UTF-8 pass
// through as opaque bytes.
type NormalizedPath struct {
	// Raw is the untouched input
	Raw string
	// Text is the fully decoded input with every separator rewritten to '/'
	Text string
	// Segments are the components of Text with "" and "." removed and ".." kept
	Segments []string
	// Absolute is set when the input began with a separator or a drive prefix
	Absolute bool
	// Drive holds the drive prefix, such as "C:", when present
	Drive string

	// Rounds is the number of decode rounds that changed the text
	Rounds int
	// Exhausted is set when the text still changed after the last permitted round
	Exhausted bool
	// PercentDecoded is set when at least one %XX escape was decoded
	PercentDecoded bool
	// Overlong is set when an overlong UTF-8 sequence was folded to ASCII
	Overlong bool
	// Folded is set when Unicode compatibility folding rewrote a character
	Folded bool
}

// Normalize canonicalizes raw using the default decode round limit
func Normalize(raw string) NormalizedPath {
	return normalize(raw, DefaultMaxDecodeRounds)
}

// String renders the normalized path with '/' separators. Normalizing the
// result yields the same segments and prefix whenever decoding reached a
// fixpoint. A relative path whose first segment looks like a drive ("./C:")
// keeps its "./" so it does not turn absolute.
func (n NormalizedPath) String() string {
	joined := strings.Join(n.Segments, "/")
	switch {
	case n.Drive != "":
		return n.Drive + "/" + joined
	case n.Absolute:
		return "/" + joined
	}
	if _, ok := drivePrefix(joined); ok {
		return "./" + joined
	}
	return joined
}

// HasDotDot reports whether any segment is ".."
func (n NormalizedPath) HasDotDot() bool {
	for _, seg := range n.Segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

func normalize(raw string, maxRounds int) NormalizedPath {
	n := NormalizedPath{Raw: raw}

	text := strings.ReplaceAll(raw, `\`, "/")
	for {
		next, st := decodeRound(text)
		if next == text {
			break
		}
		if n.Rounds == maxRounds {
			n.Exhausted = true
			break
		}
		n.Rounds++
		n.PercentDecoded = n.PercentDecoded || st.percent
		n.Overlong = n.Overlong || st.overlong
		n.Folded = n.Folded || st.folded
		text = next
	}
	n.Text = text

	rest := text
	if drive, ok := drivePrefix(text); ok {
		n.Drive = drive
		n.Absolute = true
		rest = text[len(drive):]
	} else if strings.HasPrefix(text, "/") {
		n.Absolute = true
	}
	n.Segments = splitSegments(rest)
	return n
}

func splitSegments(s string) []string {
	parts := strings.Split(s, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		segs = append(segs, p)
	}
	return segs
}

// drivePrefix matches a leading Windows drive designator such as "C:"
func drivePrefix(s string) (string, bool) {
	if len(s) < 2 || s[1] != ':' {
		return "", false
	}
	c := s[0]
	if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
		return s[:2], true
	}
	return "", false
}

type roundState struct {
	percent  bool
	overlong bool
	folded   bool
}

// decodeRound performs one decoding layer: a single pass of percent-decoding,
// overlong UTF-8 folding, Unicode compatibility folding and separator
// unification.
func decodeRound(s string) (string, roundState) {
	var st roundState
	out := percentDecodeOnce(s)
	st.percent = out != s

	folded := foldOverlong(out)
	st.overlong = folded != out
	out = folded

	compat, changed := foldCompat(out)
	st.folded = changed
	out = compat

	return strings.ReplaceAll(out, `\`, "/"), st
}

// percentDecodeOnce decodes every well-formed %XX triple, and every IIS
// style %uXXXX escape, exactly once. Malformed escapes are copied through.
func percentDecodeOnce(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if r, ok := unicodeEscape(s[i:]); ok {
			b.WriteRune(r)
			i += 5
			continue
		}
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// unicodeEscape parses a leading %uXXXX escape
func unicodeEscape(s string) (rune, bool) {
	if len(s) < 6 || s[0] != '%' || (s[1] != 'u' && s[1] != 'U') {
		return 0, false
	}
	var r rune
	for i := 2; i < 6; i++ {
		if !isHex(s[i]) {
			return 0, false
		}
		r = r<<4 | rune(unhex(s[i]))
	}
	return r, true
}

// foldOverlong rewrites overlong UTF-8 encodings of ASCII characters, such as
// C0 AE for '.', to the character they smuggle.
func foldOverlong(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if (c == 0xc0 || c == 0xc1) && i+1 < len(s) && isContinuation(s[i+1]) {
			b.WriteByte((c&0x1f)<<6 | s[i+1]&0x3f)
			i += 2
			continue
		}
		if c == 0xe0 && i+2 < len(s) && s[i+1] == 0x80 && isContinuation(s[i+2]) {
			b.WriteByte(s[i+2] & 0x3f)
			i += 3
			continue
		}
		if c == 0xe0 && i+2 < len(s) && s[i+1] == 0x81 && isContinuation(s[i+2]) {
			b.WriteByte(0x40 | s[i+2]&0x3f)
			i += 3
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isContinuation(c byte) bool {
	return c&0xc0 == 0x80
}

// foldCompat applies NFKC to every valid UTF-8 run of s, leaving invalid
// bytes in place. changed is only set for compatibility rewrites, so plain
// canonical recomposition of accented letters does not count as folding.
func foldCompat(s string) (string, bool) {
	if isASCII(s) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	changed := false
	start := 0
	flush := func(end int) {
		run := s[start:end]
		nfkc := norm.NFKC.String(run)
		if nfkc != norm.NFC.String(run) {
			changed = true
		}
		b.WriteString(nfkc)
	}
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			flush(i)
			b.WriteByte(s[i])
			i++
			start = i
			continue
		}
		i += size
	}
	flush(len(s))
	return b.String(), changed
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
