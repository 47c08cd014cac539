// Package categorizer classifies package identifiers into categories.
//
// A Categorizer holds a compiled rule table behind an atomic pointer so a
// reloaded table can be swapped in while other goroutines classify:
//
//	c, err := categorizer.New(categorizer.Config{
//	    Table:      rules.Default(),
//	    Categories: config.Default().Categories,
//	}, log)
//	if err != nil {
//	    return err
//	}
//
//	res := c.Resolve("com.duolingo")
//	// res.Category == "learning", res.CategoryID == 2
package categorizer

import (
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Classification is the rule-table outcome for one package.
type Classification struct {
	// Category is the category name.
	Category string

	// Excluded means the package never contributes to statistics.
	Excluded bool

	// Offline marks virtual offline-activity packages.
	Offline bool

	// RuleName is the matching rule, empty for the default fallback.
	RuleName string
}

// Resolution is a classification with its category id.
type Resolution struct {
	Classification

	// CategoryID is the live category id.
	CategoryID int

	// Miss is true when Category is not in the category table and the
	// default category id was used instead.
	Miss bool
}

// Categorizer maps package names to categories.
type Categorizer interface {
	// Classify evaluates the current rule table against pkg.
	Classify(pkg string) Classification

	// Resolve classifies pkg and looks up the category id. Unknown
	// category names fall back to the default category and log a warning.
	Resolve(pkg string) Resolution

	// IsExcluded reports whether pkg is excluded by the current table.
	IsExcluded(pkg string) bool

	// CategoryID returns the live id of a category name.
	CategoryID(name string) (int, bool)

	// Category returns the live category with the given id.
	Category(id int) (usage.Category, bool)

	// Categories returns the live category table in display order.
	Categories() []usage.Category

	// DefaultCategoryID returns the id of the table's default category.
	DefaultCategoryID() int

	// Swap validates and installs a new rule table.
	Swap(table *rules.Table) error

	// Version returns the version of the installed rule table.
	Version() string
}

// Config contains categorizer configuration.
type Config struct {
	// Table is the initial rule table. Nil means rules.Default().
	Table *rules.Table

	// Categories is the live category table.
	Categories []usage.Category
}

// DefaultCategories returns the built-in live category table.
func DefaultCategories() []usage.Category {
	return []usage.Category{
		{ID: 1, Name: "entertainment", DisplayOrder: 1},
		{ID: 2, Name: "learning", DisplayOrder: 2},
		{ID: 3, Name: "fitness", DisplayOrder: 3},
	}
}
