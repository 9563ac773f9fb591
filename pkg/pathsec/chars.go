package pathsec

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// homoglyphs imitate '.', '/' or '\' closely enough to fool a reader or a
// downstream normalizer. Full-width ASCII (U+FF01..U+FF5E) is handled by range.
var homoglyphs = map[rune]bool{
	'․': true, // one dot leader
	'‥': true, // two dot leader
	'…': true, // horizontal ellipsis
	'﹒': true, // small full stop
	'⁄': true, // fraction slash
	'∕': true, // division slash
	'╱': true, // box drawings diagonal
	'⧸': true, // big solidus
	'∖': true, // set minus
	'⧵': true, // reverse solidus operator
	'⧹': true, // big reverse solidus
	'¥': true, // yen sign, rendered as '\' by Japanese code pages
	'₩': true, // won sign, rendered as '\' by Korean code pages
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f)
}

// isInvisible reports zero-width, byte order mark and bidi override characters
func isInvisible(r rune) bool {
	return unicode.Is(unicode.Cf, r)
}

func isHomoglyph(r rune) bool {
	return homoglyphs[r] || (r >= 0xff01 && r <= 0xff5e)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// hasControlByte scans s bytewise for NUL and other C0 control bytes. A NUL
// anywhere takes precedence.
func hasControlByte(s string) (nul bool, ctrl bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 {
			return true, false
		}
		if c < 0x20 || c == 0x7f {
			ctrl = true
		}
	}
	return false, ctrl
}

// runeFilter rebuilds s without the runes for which drop returns true. chunk
// holds the encoded rune; invalid UTF-8 arrives as utf8.RuneError with a
// one-byte chunk.
func runeFilter(s string, drop func(r rune, chunk string) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !drop(r, s[i:i+size]) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
