package pathsec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// DefaultMaxInputSize is the largest input, in bytes, the engine will
// examine. Detection fails closed above it and sanitizers truncate.
const DefaultMaxInputSize = 64 * 1024

// SystemDenyGlobs lists sensitive system locations. They are not denied by
// default; add them to Config.DenyGlobs to reject paths that point into them.
var SystemDenyGlobs = []string{
	"{/proc,/proc/**}",
	"{/sys,/sys/**}",
	"{/dev,/dev/**}",
	"{/etc,/etc/**}",
	"{/boot,/boot/**}",
	"{/tmp,/tmp/**}",
	"{/var/tmp,/var/tmp/**}",
	"{C:/Windows/System32,C:/Windows/System32/**}",
	"{C:/Windows/Temp,C:/Windows/Temp/**}",
}

// Config holds engine configuration
type Config struct {
	// Rules is the platform rule table
	Rules Rules
	// MaxInputSize caps the bytes examined per call
	MaxInputSize int
	// MaxDecodeRounds caps iterated percent-decoding
	MaxDecodeRounds int
	// AllowAbsolute accepts absolute paths and keeps their prefix when sanitizing
	AllowAbsolute bool
	// StrictSeparators rejects mixed and repeated separators in ValidatePath
	StrictSeparators bool
	// Placeholder replaces a path or filename that sanitizes to nothing
	Placeholder string
	// ProjectPlaceholder replaces a project name that sanitizes to nothing
	ProjectPlaceholder string
	// DenyGlobs reject matching paths in ValidatePath. Patterns are matched
	// against the normalized path with '/' separators.
	DenyGlobs []string
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Rules:              PortableRules(),
		MaxInputSize:       DefaultMaxInputSize,
		MaxDecodeRounds:    DefaultMaxDecodeRounds,
		AllowAbsolute:      true,
		StrictSeparators:   true,
		Placeholder:        "_",
		ProjectPlaceholder: "project",
	}
}

// Engine evaluates untrusted path strings. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	cfg         Config
	rules       Rules
	deny        []deniedGlob
	fingerprint string
}

type deniedGlob struct {
	pattern string
	matcher glob.Glob
}

// NewEngine creates an engine from config. A nil config uses DefaultConfig.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.DenyGlobs = append([]string(nil), config.DenyGlobs...)
	cfg.Rules.ReservedNames = append([]string(nil), config.Rules.ReservedNames...)

	if err := cfg.Rules.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxInputSize <= 0 {
		return nil, configError("max input size must be greater than 0")
	}
	if cfg.MaxInputSize < cfg.Rules.MaxPathLength {
		return nil, configError("max input size %d is smaller than max path length %d",
			cfg.MaxInputSize, cfg.Rules.MaxPathLength)
	}
	if cfg.MaxDecodeRounds <= 0 {
		return nil, configError("max decode rounds must be greater than 0")
	}

	e := &Engine{cfg: cfg, rules: cfg.Rules}

	if err := e.checkPlaceholders(); err != nil {
		return nil, err
	}

	for _, pattern := range cfg.DenyGlobs {
		p := pattern
		if cfg.Rules.CaseInsensitive {
			p = strings.ToLower(p)
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: deny glob %q: %v", ErrInvalidConfig, pattern, err)
		}
		e.deny = append(e.deny, deniedGlob{pattern: pattern, matcher: g})
	}

	e.fingerprint = e.computeFingerprint()
	return e, nil
}

// MustNewEngine is like NewEngine but panics on error
func MustNewEngine(config *Config) *Engine {
	e, err := NewEngine(config)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) checkPlaceholders() error {
	p := e.cfg.Placeholder
	if p == "" || p == "." || p == ".." {
		return configError("placeholder %q is not a usable path segment", p)
	}
	for _, r := range p {
		if e.rules.IsIllegal(r) || r == '\\' || r == '%' || isInvisible(r) || r == ' ' {
			return configError("placeholder %q contains %q", p, r)
		}
	}
	if len(p) > e.rules.MaxFilenameLength || e.rules.IsReserved(p) || isDotVariant(p) {
		return configError("placeholder %q is not a usable file name", p)
	}
	if strings.HasSuffix(p, ".") {
		return configError("placeholder %q ends with a dot", p)
	}

	if res := e.ValidateProjectName(e.cfg.ProjectPlaceholder); !res.Valid {
		return configError("project placeholder %q: %s", e.cfg.ProjectPlaceholder, res.Detail)
	}
	return nil
}

func (e *Engine) computeFingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%t|%t|%q|%q|%s",
		e.rules.fingerprint(), e.cfg.MaxInputSize, e.cfg.MaxDecodeRounds,
		e.cfg.AllowAbsolute, e.cfg.StrictSeparators, e.cfg.Placeholder,
		e.cfg.ProjectPlaceholder, strings.Join(e.cfg.DenyGlobs, "\x00"))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.DenyGlobs = append([]string(nil), e.cfg.DenyGlobs...)
	cfg.Rules.ReservedNames = append([]string(nil), e.cfg.Rules.ReservedNames...)
	return cfg
}

// Rules returns the engine's rule table
func (e *Engine) Rules() Rules {
	return e.Config().Rules
}

// Fingerprint identifies the engine configuration. Two engines with the same
// fingerprint return identical results for every input.
func (e *Engine) Fingerprint() string {
	return e.fingerprint
}

// Normalize canonicalizes raw with the engine's decode round limit
func (e *Engine) Normalize(raw string) NormalizedPath {
	return normalize(raw, e.cfg.MaxDecodeRounds)
}

// DetectTraversal reports whether raw attempts directory traversal. Inputs
// over the size limit are reported as traversal without being examined.
func (e *Engine) DetectTraversal(raw string) TraversalResult {
	if len(raw) > e.cfg.MaxInputSize {
		return traversal(ReasonInputTooLong)
	}
	return e.detectTraversal(raw, e.Normalize(raw))
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the shared engine built from DefaultConfig
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = MustNewEngine(DefaultConfig())
	})
	return defaultEngine
}

// ValidatePath validates raw with the default engine
func ValidatePath(raw string) ValidationResult {
	return Default().ValidatePath(raw)
}

// DetectTraversal inspects raw with the default engine
func DetectTraversal(raw string) TraversalResult {
	return Default().DetectTraversal(raw)
}

// SanitizePath sanitizes raw with the default engine
func SanitizePath(raw string) SanitizedResult {
	return Default().SanitizePath(raw)
}

// ValidateFilename validates name with the default engine
func ValidateFilename(name string) ValidationResult {
	return Default().ValidateFilename(name)
}

// SanitizeFilename sanitizes raw with the default engine
func SanitizeFilename(raw string) SanitizedResult {
	return Default().SanitizeFilename(raw)
}

// ValidateProjectName validates name with the default engine
func ValidateProjectName(name string) ValidationResult {
	return Default().ValidateProjectName(name)
}

// SanitizeProjectName sanitizes name with the default engine
func SanitizeProjectName(name string) ProjectNameResult {
	return Default().SanitizeProjectName(name)
}
