package usage

import "errors"

// Common errors returned by the usage constructors.
var (
	// ErrEmptyPackage is returned when a session has no package name.
	ErrEmptyPackage = errors.New("package name must not be empty")

	// ErrInvalidTimeRange is returned when end time is not after start time.
	ErrInvalidTimeRange = errors.New("invalid time range: end must be after start")

	// ErrInvalidDate is returned when a date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date: must be YYYY-MM-DD")

	// ErrInvalidHour is returned when an hour is outside 0..23.
	ErrInvalidHour = errors.New("invalid hour: must be 0-23")

	// ErrForeignChild is returned when a rollup child belongs to another parent.
	ErrForeignChild = errors.New("child row does not belong to this rollup")

	// ErrNegativeTotal is returned when a rollup would have a negative total.
	ErrNegativeTotal = errors.New("rollup total must not be negative")
)
