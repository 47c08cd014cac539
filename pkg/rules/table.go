package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validate checks that every rule is well formed.
func (t *Table) Validate() error {
	if strings.TrimSpace(t.DefaultCategory) == "" {
		return ErrNoDefaultCategory
	}

	for i, r := range t.Rules {
		switch r.Match {
		case MatchExact, MatchPrefix, MatchContains, MatchToken:
		default:
			return fmt.Errorf("rule %d (%s): %w", i, r.Name, ErrInvalidMatchKind)
		}
		if len(r.Patterns) == 0 {
			return fmt.Errorf("rule %d (%s): %w", i, r.Name, ErrEmptyRule)
		}
	}

	return nil
}

// Compile returns a copy of the table with rules sorted by priority and
// exact-match patterns indexed. The result is safe for concurrent use.
func (t *Table) Compile() (*Compiled, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ordered := make([]Rule, len(t.Rules))
	copy(ordered, t.Rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	c := &Compiled{
		version:         t.Version,
		defaultCategory: t.DefaultCategory,
		rules:           make([]compiledRule, len(ordered)),
	}
	for i, r := range ordered {
		cr := compiledRule{Rule: r}
		if r.Match == MatchExact {
			cr.exact = make(map[string]struct{}, len(r.Patterns))
			for _, p := range r.Patterns {
				cr.exact[p] = struct{}{}
			}
		}
		c.rules[i] = cr
	}

	return c, nil
}

// Compiled is an immutable, evaluation-ready rule table.
type Compiled struct {
	version         string
	defaultCategory string
	rules           []compiledRule
}

type compiledRule struct {
	Rule
	exact map[string]struct{}
}

// Version returns the source table version.
func (c *Compiled) Version() string { return c.version }

// DefaultCategory returns the fallback category name.
func (c *Compiled) DefaultCategory() string { return c.defaultCategory }

// Len returns the number of rules.
func (c *Compiled) Len() int { return len(c.rules) }

// Evaluate returns the first matching rule's outcome, or the default
// category when nothing matches.
func (c *Compiled) Evaluate(pkg string) Match {
	for _, r := range c.rules {
		category, ok := r.match(pkg)
		if !ok {
			continue
		}
		if category == "" {
			category = c.defaultCategory
		}
		return Match{
			Category: category,
			Excluded: r.Excluded,
			Offline:  r.Offline || r.Match == MatchToken,
			Rule:     r.Name,
		}
	}

	return Match{Category: c.defaultCategory}
}

func (r compiledRule) match(pkg string) (string, bool) {
	switch r.Match {
	case MatchExact:
		if _, ok := r.exact[pkg]; ok {
			return r.Category, true
		}
	case MatchPrefix:
		for _, p := range r.Patterns {
			if strings.HasPrefix(pkg, p) {
				return r.Category, true
			}
		}
	case MatchContains:
		for _, p := range r.Patterns {
			if strings.Contains(pkg, p) {
				return r.Category, true
			}
		}
	case MatchToken:
		for _, p := range r.Patterns {
			if token, ok := strings.CutPrefix(pkg, p); ok && token != "" {
				return token, true
			}
		}
	}
	return "", false
}

// Load reads a rule table from a YAML file and validates it.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRuleFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML rule table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return &t, nil
}

// Save writes t as YAML, creating parent directories.
func Save(t *Table, path string) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid rule table: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create rule directory: %w", err)
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal rule table: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write rule file: %w", err)
	}

	return nil
}
