package categorizer

import "errors"

// Common errors returned by the categorizer.
var (
	// ErrNoCategories is returned when the category table is empty.
	ErrNoCategories = errors.New("category table is empty")

	// ErrDuplicateCategory is returned when two categories share a name or id.
	ErrDuplicateCategory = errors.New("duplicate category")

	// ErrUnknownDefaultCategory is returned when the rule table's default
	// category is not in the category table.
	ErrUnknownDefaultCategory = errors.New("default category is not in the category table")
)
