package pathsec

import "strings"

// detectTraversal classifies an input that has already been normalized. The
// checks run in precedence order and the first hit wins.
func (e *Engine) detectTraversal(raw string, n NormalizedPath) TraversalResult {
	if nul, ctrl := hasControlByte(raw); nul {
		return traversal(ReasonNullByte)
	} else if ctrl {
		return traversal(ReasonControlChar)
	}
	if nul, ctrl := hasControlByte(n.Text); nul {
		return traversal(ReasonNullByte)
	} else if ctrl {
		return traversal(ReasonControlChar)
	}

	if n.Exhausted {
		return traversal(ReasonExcessiveEncoding)
	}

	if n.HasDotDot() {
		if countDotDot(n.Segments) > literalDotDots(raw) {
			return traversal(ReasonEncodedDotDot)
		}
		if escapesBase(n.Segments) {
			return traversal(ReasonAbsoluteEscape)
		}
		return traversal(ReasonDotDot)
	}

	if e.rules.DotVariants {
		for _, seg := range n.Segments {
			if isDotVariant(seg) {
				return traversal(ReasonDotVariant)
			}
		}
	}

	return TraversalResult{Reason: ReasonNone}
}

func traversal(reason Reason) TraversalResult {
	return TraversalResult{IsTraversal: true, Reason: reason}
}

func countDotDot(segs []string) int {
	count := 0
	for _, seg := range segs {
		if seg == ".." {
			count++
		}
	}
	return count
}

// literalDotDots counts ".." components visible in the raw text without any
// decoding, splitting on both separator styles.
func literalDotDots(raw string) int {
	return countDotDot(strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '\\'
	}))
}

// escapesBase reports whether resolving the segments against any starting
// directory climbs above it.
func escapesBase(segs []string) bool {
	depth := 0
	for _, seg := range segs {
		if seg == ".." {
			depth--
			if depth < 0 {
				return true
			}
			continue
		}
		depth++
	}
	return false
}

// isDotVariant matches segments built only from dots padded with spaces,
// tabs or pipes, like "...", ". ." or ".|.". Several platforms trim or
// collapse these into "..".
func isDotVariant(seg string) bool {
	if len(seg) < 3 || seg == ".." {
		return false
	}
	dots := 0
	for i := 0; i < len(seg); i++ {
		switch seg[i] {
		case '.':
			dots++
		case ' ', '\t', '|':
		default:
			return false
		}
	}
	return dots >= 2
}
