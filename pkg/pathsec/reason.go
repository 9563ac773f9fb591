package pathsec

// Reason is a machine-readable code explaining why an input was flagged,
// rejected, or rewritten.
type Reason string

// Traversal verdict reasons
const (
	ReasonNone              Reason = "NONE"
	ReasonDotDot            Reason = "DOT_DOT"
	ReasonEncodedDotDot     Reason = "ENCODED_DOT_DOT"
	ReasonAbsoluteEscape    Reason = "ABSOLUTE_ESCAPE"
	ReasonNullByte          Reason = "NULL_BYTE"
	ReasonControlChar       Reason = "CONTROL_CHAR"
	ReasonDotVariant        Reason = "DOT_VARIANT"
	ReasonExcessiveEncoding Reason = "EXCESSIVE_ENCODING"
	ReasonInputTooLong      Reason = "INPUT_TOO_LONG"
)

// Validation reasons
const (
	ReasonEmpty                 Reason = "EMPTY"
	ReasonPathTooLong           Reason = "PATH_TOO_LONG"
	ReasonTooLong               Reason = "TOO_LONG"
	ReasonSurroundingWhitespace Reason = "SURROUNDING_WHITESPACE"
	ReasonRepeatedWhitespace    Reason = "REPEATED_WHITESPACE"
	ReasonProtocolScheme        Reason = "PROTOCOL_SCHEME"
	ReasonUnicodeEscape         Reason = "UNICODE_ESCAPE"
	ReasonHTMLEntity            Reason = "HTML_ENTITY"
	ReasonOverlongUTF8          Reason = "OVERLONG_UTF8"
	ReasonDoubleEncoding        Reason = "DOUBLE_ENCODING"
	ReasonEncodedSeparator      Reason = "ENCODED_SEPARATOR"
	ReasonEncodedDot            Reason = "ENCODED_DOT"
	ReasonInvisibleUnicode      Reason = "INVISIBLE_UNICODE"
	ReasonUnicodeHomoglyph      Reason = "UNICODE_HOMOGLYPH"
	ReasonWildcard              Reason = "WILDCARD"
	ReasonShellExpansion        Reason = "SHELL_EXPANSION"
	ReasonUnusualSeparator      Reason = "UNUSUAL_SEPARATOR"
	ReasonUNCPath               Reason = "UNC_PATH"
	ReasonDevicePath            Reason = "DEVICE_PATH"
	ReasonMixedSeparators       Reason = "MIXED_SEPARATORS"
	ReasonRepeatedSeparator     Reason = "REPEATED_SEPARATOR"
	ReasonAlternateDataStream   Reason = "ALTERNATE_DATA_STREAM"
	ReasonReservedName          Reason = "RESERVED_NAME"
	ReasonTrailingDotOrSpace    Reason = "TRAILING_DOT_OR_SPACE"
	ReasonIllegalCharacter      Reason = "ILLEGAL_CHARACTER"
	ReasonAbsolutePath          Reason = "ABSOLUTE_PATH"
	ReasonDeniedLocation        Reason = "DENIED_LOCATION"
	ReasonPathSeparator         Reason = "PATH_SEPARATOR"
	ReasonDisallowedCharacter   Reason = "DISALLOWED_CHARACTER"
	ReasonInvalidBoundary       Reason = "INVALID_BOUNDARY"
)

// Sanitizer removal reasons
const (
	ReasonDotSegment    Reason = "DOT_SEGMENT"
	ReasonEmptySegment  Reason = "EMPTY_SEGMENT"
	ReasonInvalidUTF8   Reason = "INVALID_UTF8"
	ReasonEscapeResidue Reason = "ESCAPE_RESIDUE"
	ReasonTruncated     Reason = "TRUNCATED"
)

var reasonDescriptions = map[Reason]string{
	ReasonNone:                  "no traversal detected",
	ReasonDotDot:                "parent directory reference",
	ReasonEncodedDotDot:         "encoded parent directory reference",
	ReasonAbsoluteEscape:        "parent reference escapes the starting directory",
	ReasonNullByte:              "null byte",
	ReasonControlChar:           "control character",
	ReasonDotVariant:            "dot sequence that some platforms treat as a parent reference",
	ReasonExcessiveEncoding:     "too many layers of percent-encoding",
	ReasonInputTooLong:          "input exceeds the maximum accepted size",
	ReasonEmpty:                 "input is empty",
	ReasonPathTooLong:           "path exceeds the maximum path length",
	ReasonTooLong:               "name exceeds the maximum length",
	ReasonSurroundingWhitespace: "leading or trailing whitespace",
	ReasonRepeatedWhitespace:    "repeated whitespace",
	ReasonProtocolScheme:        "protocol scheme",
	ReasonUnicodeEscape:         "%u unicode escape",
	ReasonHTMLEntity:            "HTML numeric entity",
	ReasonOverlongUTF8:          "overlong UTF-8 encoding",
	ReasonDoubleEncoding:        "double percent-encoding",
	ReasonEncodedSeparator:      "percent-encoded path separator",
	ReasonEncodedDot:            "percent-encoded dot",
	ReasonInvisibleUnicode:      "invisible or bidirectional control character",
	ReasonUnicodeHomoglyph:      "character that imitates a dot or separator",
	ReasonWildcard:              "wildcard character",
	ReasonShellExpansion:        "shell expansion character",
	ReasonUnusualSeparator:      "unusual separator character",
	ReasonUNCPath:               "UNC network path",
	ReasonDevicePath:            "device namespace path",
	ReasonMixedSeparators:       "mixed path separators",
	ReasonRepeatedSeparator:     "repeated path separator",
	ReasonAlternateDataStream:   "alternate data stream syntax",
	ReasonReservedName:          "reserved device name",
	ReasonTrailingDotOrSpace:    "component ends with a dot or space",
	ReasonIllegalCharacter:      "character not allowed in file names",
	ReasonAbsolutePath:          "absolute path",
	ReasonDeniedLocation:        "path matches a denied location",
	ReasonPathSeparator:         "path separator",
	ReasonDisallowedCharacter:   "character outside the allowed set",
	ReasonInvalidBoundary:       "name starts or ends with '-' or '_'",
	ReasonDotSegment:            "current directory reference",
	ReasonEmptySegment:          "empty path component",
	ReasonInvalidUTF8:           "invalid UTF-8",
	ReasonEscapeResidue:         "undecoded escape sequence",
	ReasonTruncated:             "truncated to the length limit",
}

// String returns the reason code
func (r Reason) String() string {
	return string(r)
}

// Describe returns a short human-readable explanation of the reason
func (r Reason) Describe() string {
	if d, ok := reasonDescriptions[r]; ok {
		return d
	}
	return string(r)
}

// IsTraversal reports whether the reason is one of the traversal verdicts
func (r Reason) IsTraversal() bool {
	switch r {
	case ReasonDotDot, ReasonEncodedDotDot, ReasonAbsoluteEscape, ReasonNullByte,
		ReasonControlChar, ReasonDotVariant, ReasonExcessiveEncoding, ReasonInputTooLong:
		return true
	}
	return false
}
