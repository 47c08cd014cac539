package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoDBPath is returned when no database path is specified.
	ErrNoDBPath = errors.New("no database path specified")

	// ErrInvalidLockTimeout is returned when the lock timeout is negative.
	ErrInvalidLockTimeout = errors.New("invalid lock timeout: must be >= 0")

	// ErrInvalidMaxFileSize is returned when the max file size is negative.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be >= 0")

	// ErrInvalidRetry is returned when retry count or delay is negative.
	ErrInvalidRetry = errors.New("invalid retry settings: must be >= 0")

	// ErrInvalidDebounce is returned when the watch debounce is negative.
	ErrInvalidDebounce = errors.New("invalid watch debounce: must be >= 0")

	// ErrInvalidTimeZone is returned when the time zone cannot be loaded.
	ErrInvalidTimeZone = errors.New("invalid time zone")

	// ErrInvalidTolerance is returned when the consistency tolerance is negative.
	ErrInvalidTolerance = errors.New("invalid tolerance: must be >= 0")

	// ErrInvalidThreshold is returned when a detector threshold is negative.
	ErrInvalidThreshold = errors.New("invalid detector threshold: must be >= 0")

	// ErrInvalidNightHour is returned when a night hour is outside 0-23.
	ErrInvalidNightHour = errors.New("invalid night hour: must be within 0-23")

	// ErrNoCategories is returned when the category table is empty.
	ErrNoCategories = errors.New("no categories specified")

	// ErrInvalidCategory is returned when a category has no name, a
	// non-positive id, or repeats an id or name.
	ErrInvalidCategory = errors.New("invalid category table")

	// ErrInvalidShrinkRatio is returned when the shrink ratio is outside [0, 1].
	ErrInvalidShrinkRatio = errors.New("invalid shrink ratio: must be within [0, 1]")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
