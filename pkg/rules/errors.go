package rules

import "errors"

// Common errors returned by the rules package.
var (
	// ErrNoDefaultCategory is returned when a table has no default category.
	ErrNoDefaultCategory = errors.New("rule table has no default category")

	// ErrInvalidMatchKind is returned for an unknown match kind.
	ErrInvalidMatchKind = errors.New("invalid match kind: must be exact, prefix, contains, or token")

	// ErrEmptyRule is returned for a rule without patterns.
	ErrEmptyRule = errors.New("rule has no patterns")

	// ErrRuleFileNotFound is returned when the rule file does not exist.
	ErrRuleFileNotFound = errors.New("rule file not found")

	// ErrInvalidYAML is returned when the rule file cannot be decoded.
	ErrInvalidYAML = errors.New("invalid YAML syntax in rule file")
)
