/*
category.go - Bill category registration and lookup

PURPOSE:
  One billing engine serves every kind of society bill. What differs
  between a water bill, a clubhouse fee and monthly maintenance is
  configuration, not control flow: the label shown next to unit usage,
  the default number of days until a bill falls due, and which ledger
  statement the bill's vouchers land in. Domain packages register those
  differences here.

HOW IT WORKS:
  1. billing/categories.go registers the presets on init()
  2. Deployments may register more categories from the YAML config
  3. The API and factory look up categories by ID

USAGE:
  generic.RegisterCategory(generic.Category{ID: "utility", Name: "Utility", UsageLabel: "Units"})
  c, ok := generic.LookupCategory("utility")

SEE ALSO:
  - billing/categories.go: Built-in presets
  - config/config.go: Extra categories from YAML
*/
package generic

import (
	"sort"
	"sync"
)

// Category parameterises the billing engine for one kind of bill.
type Category struct {
	ID             string
	Name           string
	UsageLabel     string // e.g. "kWh", "Litres", "Hours"
	DefaultDueDays int
}

// =============================================================================
// CATEGORY REGISTRY
// =============================================================================

var (
	categoryRegistry = make(map[string]Category)
	registryMu       sync.RWMutex
)

// RegisterCategory adds or replaces a category in the global registry.
func RegisterCategory(c Category) {
	registryMu.Lock()
	defer registryMu.Unlock()
	categoryRegistry[c.ID] = c
}

// LookupCategory finds a registered category by ID.
func LookupCategory(id string) (Category, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := categoryRegistry[id]
	return c, ok
}

// ListCategories returns all registered categories ordered by ID.
func ListCategories() []Category {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Category, 0, len(categoryRegistry))
	for _, c := range categoryRegistry {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetOrCreateCategory looks up a category, or returns a bare fallback
// carrying only the ID. Used when reading historical bills whose
// category is no longer configured.
func GetOrCreateCategory(id string) Category {
	if c, ok := LookupCategory(id); ok {
		return c
	}
	return Category{ID: id, Name: id, UsageLabel: "Units"}
}
