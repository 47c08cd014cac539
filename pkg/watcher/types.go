// Package watcher provides file system monitoring for rule files and
// export inboxes.
//
// It uses fsnotify to watch directories and debounces rapid updates of the
// same file into one event. Reloader builds on it to hot-swap the rule
// table when its YAML file changes:
//
//	r, err := watcher.NewReloader(watcher.ReloaderConfig{
//	    Path:   "~/.config/usage-ledger/rules.yaml",
//	    Target: eng,
//	}, log)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	return r.Run(ctx)
package watcher

import (
	"context"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/rules"
)

// Op describes a file operation type.
type Op uint32

// File operation types.
const (
	OpCreate Op = 1 << iota // File created
	OpWrite                 // File modified
	OpRemove                // File deleted
	OpRename                // File renamed/moved
	OpChmod                 // File permissions changed
)

// String returns a human-readable operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Event represents a file system event.
type Event struct {
	// Path is the path of the file that triggered the event.
	Path string

	// Op is the operation that triggered the event.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher provides file system monitoring.
type Watcher interface {
	// Start begins watching the specified directories and returns once
	// they are registered. Events are processed in the background until
	// ctx is cancelled, Stop is called, or the watcher is closed.
	Start(ctx context.Context, paths []string) error

	// Stop stops event processing.
	Stop() error

	// Events returns the channel for receiving debounced events.
	// The channel is closed when the watcher is closed.
	Events() <-chan Event

	// Errors returns the channel for receiving non-fatal watcher errors.
	// The channel is closed when the watcher is closed.
	Errors() <-chan error

	// Close closes the watcher and releases resources.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// DebounceInterval is the time to wait before emitting an event.
	// Multiple events for the same file within this interval are coalesced.
	// Default: 100ms.
	DebounceInterval time.Duration

	// Filter selects the files whose events are emitted. Nil emits all.
	Filter func(path string) bool

	// Recursive also watches subdirectories present at Start.
	Recursive bool

	// CircuitBreakerThreshold is the number of fsnotify errors after which
	// only ErrCircuitBreakerOpen is reported.
	// Default: 5.
	CircuitBreakerThreshold int
}

// RuleSwapper installs rule tables. pipeline.Engine implements it.
type RuleSwapper interface {
	SwapRules(table *rules.Table) error
	RulesVersion() string
}

// ReloaderConfig contains rule reloader configuration.
type ReloaderConfig struct {
	// Path is the rule table file. "~" is expanded.
	Path string

	// Target receives every table that loads and validates.
	Target RuleSwapper

	// Debounce is the quiet period after the last change before reloading.
	// Default: 500ms.
	Debounce time.Duration

	// MaxRetries is how often a failed load is retried; editors may leave a
	// half-written file behind for a moment.
	// Default: 2.
	MaxRetries int

	// RetryDelay is the delay before the first retry, doubled per attempt.
	// Default: 100ms.
	RetryDelay time.Duration

	// OnReload is called after every reload attempt with the installed
	// version, or with the error that kept the previous table in place.
	OnReload func(version string, err error)
}
