// Package ops names the engine operations exposed by the CLI and HTTP
// bindings and dispatches them by name.
package ops

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/asgardtech/pathsec/internal/web/auth"
	"github.com/asgardtech/pathsec/pkg/pathsec"
)

// Operation is the wire name of an engine operation
type Operation string

const (
	ValidatePath        Operation = "validate-path"
	DetectTraversal     Operation = "detect-traversal"
	SanitizePath        Operation = "sanitize-path"
	ValidateFilename    Operation = "validate-filename"
	SanitizeFilename    Operation = "sanitize-filename"
	ValidateProjectName Operation = "validate-project-name"
	SanitizeProjectName Operation = "sanitize-project-name"
)

// All lists every operation in display order
var All = []Operation{
	ValidatePath,
	DetectTraversal,
	SanitizePath,
	ValidateFilename,
	SanitizeFilename,
	ValidateProjectName,
	SanitizeProjectName,
}

// Parse returns the operation named s
func Parse(s string) (Operation, error) {
	op := Operation(s)
	if !lo.Contains(All, op) {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// Names returns the operation names as strings
func Names() []string {
	return lo.Map(All, func(op Operation, _ int) string { return string(op) })
}

// Scope is the token scope required to call the operation
func (op Operation) Scope() string {
	switch op {
	case SanitizePath, SanitizeFilename, SanitizeProjectName:
		return auth.ScopeSanitize
	default:
		return auth.ScopeValidate
	}
}

// NewResult returns a pointer to the zero result type of the operation, for
// decoding cached results
func (op Operation) NewResult() interface{} {
	switch op {
	case ValidatePath, ValidateFilename, ValidateProjectName:
		return &pathsec.ValidationResult{}
	case DetectTraversal:
		return &pathsec.TraversalResult{}
	case SanitizePath, SanitizeFilename:
		return &pathsec.SanitizedResult{}
	case SanitizeProjectName:
		return &pathsec.ProjectNameResult{}
	default:
		return nil
	}
}

// Apply runs op against input. The result is a pointer to the operation's
// result type.
func Apply(e *pathsec.Engine, op Operation, input string) (interface{}, error) {
	switch op {
	case ValidatePath:
		res := e.ValidatePath(input)
		return &res, nil
	case DetectTraversal:
		res := e.DetectTraversal(input)
		return &res, nil
	case SanitizePath:
		res := e.SanitizePath(input)
		return &res, nil
	case ValidateFilename:
		res := e.ValidateFilename(input)
		return &res, nil
	case SanitizeFilename:
		res := e.SanitizeFilename(input)
		return &res, nil
	case ValidateProjectName:
		res := e.ValidateProjectName(input)
		return &res, nil
	case SanitizeProjectName:
		res := e.SanitizeProjectName(input)
		return &res, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// Rejection reports whether result is a negative verdict worth auditing and
// its reason. Sanitizer results never are.
func Rejection(result interface{}) (pathsec.Reason, bool) {
	switch r := result.(type) {
	case *pathsec.ValidationResult:
		return r.Reason, !r.Valid
	case *pathsec.TraversalResult:
		return r.Reason, r.IsTraversal
	default:
		return "", false
	}
}
