// Package dashboard holds the metric domain of the analytics dashboard:
// the five metric categories, their snapshot types and default data, the
// typed repository over the key-value store, and the simulated metric writer.
package dashboard

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies one dashboard data domain. It names both a store key
// and a live update channel.
type Category string

const (
	CategoryKPI             Category = "kpi"
	CategoryTeamPerformance Category = "team-performance"
	CategoryTaskCompletion  Category = "task-completion"
	CategoryProjectProgress Category = "project-progress"
	CategoryAnnouncements   Category = "announcements"
)

// LastUpdatedKey is the store key of the global "last updated" timestamp.
const LastUpdatedKey = "last_updated"

// ErrUnknownCategory is returned when a category name is not recognised.
var ErrUnknownCategory = errors.New("unknown category")

var categoryKeys = map[Category]string{
	CategoryKPI:             "kpi:metrics",
	CategoryTeamPerformance: "team:performance",
	CategoryTaskCompletion:  "task:completion",
	CategoryProjectProgress: "project:progress",
	CategoryAnnouncements:   "announcements",
}

// Short names used by the original dashboard's query strings and admin panel.
var categoryAliases = map[string]Category{
	"team":         CategoryTeamPerformance,
	"task":         CategoryTaskCompletion,
	"project":      CategoryProjectProgress,
	"announcement": CategoryAnnouncements,
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{
		CategoryKPI,
		CategoryTeamPerformance,
		CategoryTaskCompletion,
		CategoryProjectProgress,
		CategoryAnnouncements,
	}
}

// ParseCategory resolves a wire name or alias. Matching ignores case and
// surrounding whitespace.
func ParseCategory(name string) (Category, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknownCategory)
	}

	if c := Category(normalized); c.Valid() {
		return c, nil
	}
	if c, ok := categoryAliases[normalized]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryKeys[c]
	return ok
}

// Key returns the store key holding c's snapshot, or "" for an unknown category.
func (c Category) Key() string {
	return categoryKeys[c]
}

func (c Category) String() string {
	return string(c)
}
