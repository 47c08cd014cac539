package watcher

import "errors"

var (
	// ErrWatcherClosed is returned by every call on a closed watcher.
	ErrWatcherClosed = errors.New("watcher closed")

	// ErrAlreadyStarted is returned by Start while a previous run is active.
	ErrAlreadyStarted = errors.New("watcher already running")

	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("watcher not running")

	// ErrCircuitBreakerOpen is reported once fsnotify errors reach the
	// configured threshold. Callers should stop watching.
	ErrCircuitBreakerOpen = errors.New("too many watch errors, circuit breaker open")

	// ErrInvalidPath is returned by Start when none of the paths exist.
	ErrInvalidPath = errors.New("no watchable path")

	// ErrNoTarget is returned when a reloader has no rule target.
	ErrNoTarget = errors.New("reloader has no target")
)
