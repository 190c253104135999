package derivation

import (
	"fmt"
	"path"
	"strings"
)

// Validation rule names reported by ValidationError.
const (
	RuleExtension = "extension"
	RulePrefix    = "prefix"
)

var allowedExtensions = map[string]struct{}{
	"mov":  {},
	"mpg":  {},
	"mpeg": {},
	"mp4":  {},
	"wmv":  {},
	"avi":  {},
	"webm": {},
}

// ValidationError names the rule that rejected an event and the offending
// value. It maps to a client-class failure.
type ValidationError struct {
	Rule  string
	Value string
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case RuleExtension:
		return fmt.Sprintf("invalid file type for key %q", e.Value)
	case RulePrefix:
		return fmt.Sprintf("key %q does not start with the required prefix", e.Value)
	default:
		return fmt.Sprintf("validation rule %s failed for %q", e.Rule, e.Value)
	}
}

// Validator checks inbound events against the media allow-list and the
// required basename prefix. It has no side effects.
type Validator struct {
	prefix string
}

func NewValidator(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

// Validate applies the extension rule first, then the prefix rule.
func (v *Validator) Validate(event SourceEvent) error {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(event.Key), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return &ValidationError{Rule: RuleExtension, Value: event.Key}
	}

	base := path.Base(strings.TrimPrefix(event.Key, "/"))
	if !strings.HasPrefix(base, v.prefix) {
		return &ValidationError{Rule: RulePrefix, Value: event.Key}
	}

	return nil
}
