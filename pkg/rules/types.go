// Package rules provides the Category Rule Table: a versioned, ordered set of
// match rules mapping a package identifier to a category name and an
// "excluded from statistics" flag.
//
// Rules are evaluated by ascending priority (ties keep file order) and the
// first match wins. When nothing matches, the table's default category is
// used. Tables are plain values; they are loaded from YAML or taken from
// Default and handed to a categorizer, never kept in globals.
//
// Example rule file:
//
//	version: "2024.05"
//	default_category: entertainment
//	rules:
//	  - name: launchers
//	    priority: 30
//	    match: exact
//	    excluded: true
//	    patterns: [com.miui.home, com.android.launcher3]
//	  - name: work-apps
//	    priority: 50
//	    match: exact
//	    category: learning
//	    patterns: [com.tencent.wework, com.slack]
package rules

// MatchKind selects how a rule's patterns are compared to a package name.
type MatchKind string

const (
	// MatchExact matches the whole package name.
	MatchExact MatchKind = "exact"

	// MatchPrefix matches a leading substring.
	MatchPrefix MatchKind = "prefix"

	// MatchContains matches any substring.
	MatchContains MatchKind = "contains"

	// MatchToken matches a prefix and takes the category name from the
	// remainder of the package name (virtual offline-activity packages).
	MatchToken MatchKind = "token"
)

// Rule is one entry of the rule table.
type Rule struct {
	// Name identifies the rule in logs and diagnostics.
	Name string `yaml:"name"`

	// Priority orders evaluation; lower runs first.
	Priority int `yaml:"priority"`

	// Match is the comparison applied to Patterns.
	Match MatchKind `yaml:"match"`

	// Patterns are package names, prefixes or substrings depending on Match.
	Patterns []string `yaml:"patterns"`

	// Category is the resulting category name. Empty means the table default.
	// Ignored for MatchToken rules.
	Category string `yaml:"category,omitempty"`

	// Excluded drops matching sessions from all statistics.
	Excluded bool `yaml:"excluded,omitempty"`

	// Offline marks matches as offline activity.
	Offline bool `yaml:"offline,omitempty"`
}

// Table is a versioned rule set.
type Table struct {
	Version         string `yaml:"version"`
	DefaultCategory string `yaml:"default_category"`
	Rules           []Rule `yaml:"rules"`
}

// Match is the outcome of evaluating a table against one package.
type Match struct {
	Category string
	Excluded bool
	Offline  bool

	// Rule is the name of the matching rule, empty for the default fallback.
	Rule string
}
