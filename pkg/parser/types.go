// Package parser reads usage-session exports in JSONL format.
//
// Each line is one session tuple:
//
//	{"package":"com.duolingo","start":1714550400000,"end":1714551000000}
//	{"kind":"timer","category":"fitness","start":1714554000000,"end":1714555800000}
//
// App tuples carry a package name; timer tuples carry a category name and
// come from user-started offline activity timers. Malformed lines are
// skipped and counted rather than failing the whole file.
//
//	p := parser.New(log)
//	batch, err := p.ParseFile("/path/to/export.jsonl", 0)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(len(batch.Tuples), batch.Skipped, batch.Offset)
package parser

import "strings"

// Kind distinguishes app sessions from timer sessions.
type Kind string

const (
	// KindApp is an app foreground session.
	KindApp Kind = "app"

	// KindTimer is a user-started offline activity timer.
	KindTimer Kind = "timer"
)

// SessionTuple is one parsed line.
//
// Invariant: End > Start > 0.
// Invariant: Package is set for app tuples, Category for timer tuples.
type SessionTuple struct {
	Kind     Kind   `json:"kind,omitempty"`
	Package  string `json:"package,omitempty"`
	Category string `json:"category,omitempty"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// IsTimer reports whether t is a timer tuple.
func (t SessionTuple) IsTimer() bool {
	return t.Kind == KindTimer
}

// Validate checks the tuple invariants.
func (t *SessionTuple) Validate() error {
	switch t.Kind {
	case "", KindApp:
		if strings.TrimSpace(t.Package) == "" {
			return ErrMissingPackage
		}
	case KindTimer:
		if strings.TrimSpace(t.Category) == "" {
			return ErrMissingCategory
		}
	default:
		return ErrUnknownKind
	}

	if t.Start <= 0 {
		return ErrInvalidStart
	}
	if t.End <= t.Start {
		return ErrInvalidRange
	}

	return nil
}

// Batch is the result of parsing a file from an offset.
type Batch struct {
	// Tuples are the valid lines in file order.
	Tuples []SessionTuple

	// Offset is the byte offset just past the last complete line.
	// A trailing line without a newline is left for the next read.
	Offset int64

	// Lines is the number of complete lines read.
	Lines int

	// Skipped is the number of malformed or invalid lines.
	Skipped int

	// Errors holds the first MaxReportedErrors line errors
	// (*ParseError or *ValidationError).
	Errors []error
}
