package pathsec

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hostileInputs is a corpus of traversal and evasion attempts shared by the
// sanitizer property tests.
var hostileInputs = []string{
	"",
	".",
	"..",
	"/",
	"../../etc/passwd",
	`..\..\windows\win.ini`,
	"/var/www/../../etc/passwd",
	"%2e%2e%2f%2e%2e%2fetc%2fpasswd",
	"%252e%252e%252fetc",
	"%c0%ae%c0%ae%c0%afetc",
	"．．／．．／etc",
	"\u2025/\u2026/x",
	encodeLayers("../x", 6),
	encodeLayers("../../x", 9),
	"%%2e%2e",
	"%\x012e%\x012e/x",
	"..%00/etc",
	"file\x00name",
	". ./. ./x",
	".../....//x",
	"a/./b//c/",
	`C:\Users\..\..\x`,
	"../C:/x",
	`\\server\share\..\x`,
	"dir/\u200b../x",
	"\xff\xfe/../x",
	"file/name?with*bad|chars.txt",
	"CON",
	"con.txt",
	"   spaced   name   ",
	"trailing...",
	"<script>alert(1)</script>.html",
	strings.Repeat("a/", 3000),
	strings.Repeat("é", 400) + ".txt",
}

func hasDotDotSegment(s string) bool {
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		changed  bool
	}{
		{"clean relative", "docs/readme.md", "docs/readme.md", false},
		{"clean absolute", "/srv/data/file.txt", "/srv/data/file.txt", false},
		{"root", "/", "/", false},
		{"leading parents", "../../etc/passwd", "etc/passwd", true},
		{"parents are dropped not resolved", "/var/www/../../etc/passwd", "/var/www/etc/passwd", true},
		{"windows path", `C:\Users\..\file.txt`, "C:/Users/file.txt", true},
		{"encoded", "%2e%2e%2fetc%2fpasswd", "etc/passwd", true},
		{"dot and empty segments", "a/./b//c/", "a/b/c", true},
		{"control bytes", "dir/fi\x00le", "dir/file", true},
		{"invisible characters", "dir/fi\u200ble", "dir/file", true},
		{"dot variants", ".../x", "x", true},
		{"empty", "", "_", true},
		{"only parents", "../..", "_", true},
		{"relative drive lookalike", "../C:/x", "C_/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SanitizePath(tt.input)
			assert.Equal(t, tt.expected, res.Sanitized)
			assert.Equal(t, tt.changed, res.Changed)
		})
	}
}

func TestSanitizePath_RecordsRemovals(t *testing.T) {
	res := SanitizePath("../a/./../b")
	require.True(t, res.Changed)
	assert.Equal(t, "a/b", res.Sanitized)
	assert.Equal(t, []Removal{
		{Element: "..", Reason: ReasonDotDot},
		{Element: ".", Reason: ReasonDotSegment},
		{Element: "..", Reason: ReasonDotDot},
	}, res.Removed)
}

func TestSanitizePath_ForceRelative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowAbsolute = false
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	assert.Equal(t, "etc/passwd", e.SanitizePath("/etc/passwd").Sanitized)
	assert.Equal(t, "x/y", e.SanitizePath(`C:\x\y`).Sanitized)
	assert.Equal(t, "_", e.SanitizePath("/").Sanitized)

	res := e.SanitizePath("/etc")
	assert.Contains(t, res.Removed, Removal{Element: "/", Reason: ReasonAbsolutePath})
}

func TestSanitizePath_WindowsSeparator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = WindowsRules()
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	assert.Equal(t, `a\b\c`, e.SanitizePath("a/b/../c").Sanitized)
	assert.Equal(t, `C:\Users\x`, e.SanitizePath("C:/Users/x").Sanitized)
	assert.False(t, e.SanitizePath(`a\b`).Changed)
}

func TestSanitizePath_ExhaustedEncoding(t *testing.T) {
	res := SanitizePath(encodeLayers("../x", 6))
	assert.False(t, hasDotDotSegment(res.Sanitized))
	assert.NotContains(t, res.Sanitized, "%")
	assert.False(t, DetectTraversal(res.Sanitized).IsTraversal)
}

func TestSanitizePath_LengthLimit(t *testing.T) {
	res := SanitizePath(strings.Repeat("a", DefaultMaxInputSize+100))
	assert.Len(t, res.Sanitized, DefaultMaxPathLength)

	res = SanitizePath(strings.Repeat("abc/", 2000))
	assert.LessOrEqual(t, len(res.Sanitized), DefaultMaxPathLength)
	assert.True(t, strings.HasSuffix(res.Sanitized, "abc"))
}

func TestSanitizePath_Properties(t *testing.T) {
	for _, input := range hostileInputs {
		t.Run(input, func(t *testing.T) {
			first := SanitizePath(input)
			assert.NotEmpty(t, first.Sanitized)
			assert.False(t, hasDotDotSegment(first.Sanitized), "output %q", first.Sanitized)
			assert.False(t, DetectTraversal(first.Sanitized).IsTraversal, "output %q", first.Sanitized)

			second := SanitizePath(first.Sanitized)
			assert.Equal(t, first.Sanitized, second.Sanitized)
			assert.False(t, second.Changed)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean", "report-2024.pdf", "report-2024.pdf"},
		{"illegal characters", "file/name?with*bad|chars.txt", "file_name_with_bad_chars.txt"},
		{"windows illegal", `a:b"c<d>e\f`, "a_b_c_d_e_f"},
		{"markup", "<script>alert(1)</script>.html", "_script_alert(1)__script_.html"},
		{"reserved", "CON", "CON_"},
		{"reserved with extension", "con.txt", "con_.txt"},
		{"reserved with double extension", "LPT1.tar.gz", "LPT1_.tar.gz"},
		{"whitespace runs", "  my   file  .txt  ", "my file .txt"},
		{"tabs and newlines", "tab\there\nnow", "tab here now"},
		{"trailing dots and spaces", "trailing. . .", "trailing"},
		{"all dots", "...", "_"},
		{"parent", "..", "_"},
		{"current", ".", "_"},
		{"dotfile", ".bashrc", ".bashrc"},
		{"control bytes", "nu\x00ll\x07", "null"},
		{"zero width", "zero\u200bwidth", "zerowidth"},
		{"full-width slash", "full\uff0fwidth", "full_width"},
		{"empty", "", "_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SanitizeFilename(tt.input)
			assert.Equal(t, tt.expected, res.Sanitized)
			assert.Equal(t, tt.input != tt.expected, res.Changed)
		})
	}
}

func TestSanitizeFilename_Truncation(t *testing.T) {
	t.Run("keeps extension", func(t *testing.T) {
		res := SanitizeFilename(strings.Repeat("a", 300) + ".txt")
		assert.Len(t, res.Sanitized, DefaultMaxFilenameLength)
		assert.True(t, strings.HasSuffix(res.Sanitized, ".txt"))
	})

	t.Run("multi-byte boundary", func(t *testing.T) {
		res := SanitizeFilename(strings.Repeat("é", 200))
		assert.LessOrEqual(t, len(res.Sanitized), DefaultMaxFilenameLength)
		assert.True(t, utf8.ValidString(res.Sanitized))
	})

	t.Run("oversized extension is not preserved", func(t *testing.T) {
		res := SanitizeFilename("name." + strings.Repeat("x", 300))
		assert.Len(t, res.Sanitized, DefaultMaxFilenameLength)
		assert.True(t, strings.HasPrefix(res.Sanitized, "name."))
	})
}

func TestSanitizeFilename_POSIXRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = POSIXRules()
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	assert.Equal(t, "a:b*c.txt", e.SanitizeFilename("a:b*c.txt").Sanitized)
	assert.Equal(t, "CON", e.SanitizeFilename("CON").Sanitized)
	assert.Equal(t, "a_b_c", e.SanitizeFilename(`a/b\c`).Sanitized)
	assert.Equal(t, "_", e.SanitizeFilename("..").Sanitized)
}

func TestSanitizeFilename_Properties(t *testing.T) {
	for _, input := range hostileInputs {
		t.Run(input, func(t *testing.T) {
			first := SanitizeFilename(input)
			out := first.Sanitized

			assert.NotEmpty(t, out)
			assert.LessOrEqual(t, len(out), DefaultMaxFilenameLength)
			assert.False(t, strings.ContainsAny(out, `/\:*?"<>|`), "output %q", out)
			for _, r := range out {
				assert.False(t, isControl(r), "output %q has control %U", out, r)
			}
			assert.NotEqual(t, ".", out)
			assert.NotEqual(t, "..", out)

			second := SanitizeFilename(out)
			assert.Equal(t, out, second.Sanitized)
			assert.False(t, second.Changed)
		})
	}
}
