package pathsec

// ValidationResult is the outcome of ValidatePath and ValidateProjectName
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Err returns nil for a valid result and an *Error otherwise
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Reason: r.Reason, Detail: r.Detail}
}

// TraversalResult is the outcome of DetectTraversal
type TraversalResult struct {
	IsTraversal bool   `json:"is_traversal"`
	Reason      Reason `json:"reason"`
}

// Removal records one element a sanitizer dropped or replaced
type Removal struct {
	Element string `json:"element"`
	Reason  Reason `json:"reason"`
}

// SanitizedResult is the outcome of SanitizePath and SanitizeFilename
type SanitizedResult struct {
	Sanitized string    `json:"sanitized"`
	Changed   bool      `json:"changed"`
	Removed   []Removal `json:"removed,omitempty"`
}

// ProjectNameResult is the outcome of SanitizeProjectName. Valid and Reason
// describe the input, not the sanitized text, which is always valid.
type ProjectNameResult struct {
	Sanitized string    `json:"sanitized"`
	Changed   bool      `json:"changed"`
	Valid     bool      `json:"valid"`
	Reason    Reason    `json:"reason,omitempty"`
	Removed   []Removal `json:"removed,omitempty"`
}

func invalid(reason Reason, detail string) ValidationResult {
	if detail == "" {
		detail = reason.Describe()
	}
	return ValidationResult{Reason: reason, Detail: detail}
}

func valid() ValidationResult {
	return ValidationResult{Valid: true}
}
