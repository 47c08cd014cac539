package categorizer

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// categorizer implements the Categorizer interface.
type categorizer struct {
	state      atomic.Pointer[state]
	byName     map[string]usage.Category
	byID       map[int]usage.Category
	categories []usage.Category
	logger     logger.Logger
}

// state is swapped as a unit so readers never see a table paired with the
// wrong default id.
type state struct {
	table     *rules.Compiled
	defaultID int
}

// New creates a categorizer over cfg.Table and cfg.Categories.
func New(cfg Config, log logger.Logger) (Categorizer, error) {
	if len(cfg.Categories) == 0 {
		return nil, ErrNoCategories
	}

	c := &categorizer{
		byName:     make(map[string]usage.Category, len(cfg.Categories)),
		byID:       make(map[int]usage.Category, len(cfg.Categories)),
		categories: make([]usage.Category, len(cfg.Categories)),
		logger:     log.Named("categorizer"),
	}

	copy(c.categories, cfg.Categories)
	sort.SliceStable(c.categories, func(i, j int) bool {
		return c.categories[i].DisplayOrder < c.categories[j].DisplayOrder
	})

	for _, cat := range c.categories {
		if _, ok := c.byName[cat.Name]; ok {
			return nil, fmt.Errorf("%w: name %q", ErrDuplicateCategory, cat.Name)
		}
		if _, ok := c.byID[cat.ID]; ok {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateCategory, cat.ID)
		}
		c.byName[cat.Name] = cat
		c.byID[cat.ID] = cat
	}

	table := cfg.Table
	if table == nil {
		table = rules.Default()
	}
	if err := c.Swap(table); err != nil {
		return nil, err
	}

	return c, nil
}

// Classify implements Categorizer.Classify.
func (c *categorizer) Classify(pkg string) Classification {
	m := c.state.Load().table.Evaluate(pkg)
	return Classification{
		Category: m.Category,
		Excluded: m.Excluded,
		Offline:  m.Offline,
		RuleName: m.Rule,
	}
}

// Resolve implements Categorizer.Resolve.
func (c *categorizer) Resolve(pkg string) Resolution {
	st := c.state.Load()
	m := st.table.Evaluate(pkg)

	res := Resolution{
		Classification: Classification{
			Category: m.Category,
			Excluded: m.Excluded,
			Offline:  m.Offline,
			RuleName: m.Rule,
		},
	}

	if cat, ok := c.byName[m.Category]; ok {
		res.CategoryID = cat.ID
		return res
	}

	res.CategoryID = st.defaultID
	res.Miss = true
	c.logger.Warn("classification miss, using default category",
		"package", pkg,
		"category", m.Category,
		"category_id", st.defaultID)

	return res
}

// IsExcluded implements Categorizer.IsExcluded.
func (c *categorizer) IsExcluded(pkg string) bool {
	return c.state.Load().table.Evaluate(pkg).Excluded
}

// CategoryID implements Categorizer.CategoryID.
func (c *categorizer) CategoryID(name string) (int, bool) {
	cat, ok := c.byName[name]
	return cat.ID, ok
}

// Category implements Categorizer.Category.
func (c *categorizer) Category(id int) (usage.Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// Categories implements Categorizer.Categories.
func (c *categorizer) Categories() []usage.Category {
	out := make([]usage.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// DefaultCategoryID implements Categorizer.DefaultCategoryID.
func (c *categorizer) DefaultCategoryID() int {
	return c.state.Load().defaultID
}

// Swap implements Categorizer.Swap.
func (c *categorizer) Swap(table *rules.Table) error {
	compiled, err := table.Compile()
	if err != nil {
		return fmt.Errorf("failed to compile rule table: %w", err)
	}

	def, ok := c.byName[compiled.DefaultCategory()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefaultCategory, compiled.DefaultCategory())
	}

	old := c.state.Swap(&state{table: compiled, defaultID: def.ID})

	if old != nil {
		c.logger.Info("rule table swapped",
			"old_version", old.table.Version(),
			"new_version", compiled.Version(),
			"rules", compiled.Len())
	}

	return nil
}

// Version implements Categorizer.Version.
func (c *categorizer) Version() string {
	return c.state.Load().table.Version()
}
