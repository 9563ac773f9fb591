package pathsec

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Default limits shared by the built-in rule tables
const (
	DefaultMaxPathLength        = 4096
	DefaultMaxFilenameLength    = 255
	DefaultMaxProjectNameLength = 64
)

// Platform names accepted by RulesFor
const (
	PlatformPortable = "portable"
	PlatformWindows  = "windows"
	PlatformPOSIX    = "posix"
)

// windowsReservedNames are device names that cannot be used as file names on
// Windows, regardless of extension.
var windowsReservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// Rules is a platform rule table. It holds every platform-specific limit the
// engine consults so one engine core can serve several target filesystems.
type Rules struct {
	// Name identifies the table in fingerprints and diagnostics
	Name string
	// Separator joins segments in sanitized paths
	Separator string
	// ReservedNames are device names that must not be used as a file or project name
	ReservedNames []string
	// IllegalChars are characters replaced by the filename sanitizer
	IllegalChars string
	// CaseInsensitive makes reserved-name and deny-glob matching ignore case
	CaseInsensitive bool
	// DotVariants treats segments like "..." or ". ." as traversal
	DotVariants bool
	// WindowsSemantics enables UNC, device, stream and trailing-dot checks
	WindowsSemantics bool

	MaxPathLength        int
	MaxFilenameLength    int
	MaxProjectNameLength int
}

// PortableRules returns the union of Windows and POSIX constraints. It is the
// default table: a path accepted under it is safe on either family.
func PortableRules() Rules {
	return Rules{
		Name:                 PlatformPortable,
		Separator:            "/",
		ReservedNames:        append([]string(nil), windowsReservedNames...),
		IllegalChars:         `/\:*?"<>|`,
		CaseInsensitive:      true,
		DotVariants:          true,
		WindowsSemantics:     true,
		MaxPathLength:        DefaultMaxPathLength,
		MaxFilenameLength:    DefaultMaxFilenameLength,
		MaxProjectNameLength: DefaultMaxProjectNameLength,
	}
}

// WindowsRules returns the rule table for Windows targets
func WindowsRules() Rules {
	r := PortableRules()
	r.Name = PlatformWindows
	r.Separator = `\`
	return r
}

// POSIXRules returns the rule table for POSIX targets. Only '/' and NUL are
// illegal in POSIX names, and no device names are reserved.
func POSIXRules() Rules {
	return Rules{
		Name:                 PlatformPOSIX,
		Separator:            "/",
		IllegalChars:         "/",
		MaxPathLength:        DefaultMaxPathLength,
		MaxFilenameLength:    DefaultMaxFilenameLength,
		MaxProjectNameLength: DefaultMaxProjectNameLength,
	}
}

// RulesFor returns the built-in rule table for a platform name
func RulesFor(platform string) (Rules, error) {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "", PlatformPortable:
		return PortableRules(), nil
	case PlatformWindows:
		return WindowsRules(), nil
	case PlatformPOSIX, "linux", "darwin", "unix":
		return POSIXRules(), nil
	}
	return Rules{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
}

// IsReserved reports whether name, or its part before the first dot, is a
// reserved device name. Windows ignores extensions and trailing spaces when
// resolving device names, so "nul.txt" and "CON " are both reserved.
func (r Rules) IsReserved(name string) bool {
	if len(r.ReservedNames) == 0 {
		return false
	}
	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, " ")
	if base == "" {
		return false
	}
	if r.CaseInsensitive {
		return lo.ContainsBy(r.ReservedNames, func(reserved string) bool {
			return strings.EqualFold(reserved, base)
		})
	}
	return lo.Contains(r.ReservedNames, base)
}

// IsIllegal reports whether r is an illegal filename character under the table.
// Control characters are always illegal.
func (r Rules) IsIllegal(c rune) bool {
	return isControl(c) || strings.ContainsRune(r.IllegalChars, c)
}

func (r Rules) validate() error {
	if r.Separator != "/" && r.Separator != `\` {
		return configError("separator must be '/' or '\\', got %q", r.Separator)
	}
	if r.MaxPathLength <= 0 {
		return configError("max path length must be greater than 0")
	}
	if r.MaxFilenameLength <= 0 {
		return configError("max filename length must be greater than 0")
	}
	if r.MaxProjectNameLength <= 0 {
		return configError("max project name length must be greater than 0")
	}
	if !strings.Contains(r.IllegalChars, "/") {
		return configError("illegal characters must include '/'")
	}
	return nil
}

func (r Rules) fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%q|%t|%t|%t|%d|%d|%d",
		r.Name, r.Separator, strings.Join(r.ReservedNames, ","), r.IllegalChars,
		r.CaseInsensitive, r.DotVariants, r.WindowsSemantics,
		r.MaxPathLength, r.MaxFilenameLength, r.MaxProjectNameLength)
}
