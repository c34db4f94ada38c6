// Package prefs keeps user and window preferences as a flat "category.name" keyed map,
// loads it from a category keyed store and flushes it back exactly once on shutdown.
package prefs

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// preference categories
const (
	CategoryGeneral  = "general"
	CategoryWindow   = "window"
	CategorySearch   = "search"
	CategoryTrackers = "trackers"
	CategoryUpdate   = "update"
)

// well known keys
const (
	KeyWindowMaxed    = "window.maxed"
	KeyWindowPosition = "window.position"
	KeyWindowSize     = "window.size"
	KeySearchCount    = "search.rs_count"
	KeySearchSmart    = "search.smart"
	KeySearchInstant  = "search.inst"
	KeyTrackersURL    = "trackers.url"
	KeyTrackersList   = "trackers.list"
	KeyUpdatePolicy   = "update.policy"
	KeyUpdateURL      = "update.url"
	KeyUpdateLast     = "update.last"
)

var storedCategories = []string{CategoryGeneral, CategoryWindow, CategorySearch, CategoryTrackers, CategoryUpdate}

// Store is a category keyed persistence for preferences
type Store interface {
	Load(ctx context.Context, category string) (map[string]any, error)
	Upsert(ctx context.Context, category string, fields map[string]any) error
}

// Preferences is a flat mapping of "category.name" to value. Not thread safe, owned by a single goroutine.
type Preferences map[string]any

// Defaults returns preferences used when nothing is stored yet
func Defaults() Preferences {
	return Preferences{
		KeyWindowMaxed:    false,
		KeyWindowPosition: []any{0, 0},
		KeyWindowSize:     []any{1200, 800},
		KeySearchCount:    100,
		KeySearchSmart:    true,
		KeySearchInstant:  false,
		KeyTrackersURL:    "",
		KeyTrackersList:   []any{},
		KeyUpdatePolicy:   "notify",
		KeyUpdateURL:      "",
		KeyUpdateLast:     0,
	}
}

// Load makes preferences from defaults overlaid by every stored category.
// On error it still returns everything loaded so far, so the caller can continue with it.
func Load(ctx context.Context, store Store) (Preferences, error) {
	res := Defaults()
	for _, category := range storedCategories {
		fields, err := store.Load(ctx, category)
		if err != nil {
			return res, fmt.Errorf("can't load %s preferences: %w", category, err)
		}
		res.Merge(category, fields)
	}
	return res, nil
}

// Split separates key to category and name, keys without category belong to CategoryGeneral
func Split(key string) (category, name string) {
	if idx := strings.IndexByte(key, '.'); idx > 0 && idx < len(key)-1 {
		return key[:idx], key[idx+1:]
	}
	return CategoryGeneral, key
}

// Set stores value for key
func (p Preferences) Set(key string, value any) {
	category, name := Split(key)
	p[category+"."+name] = value
}

// Get returns value for key
func (p Preferences) Get(key string) (any, bool) {
	category, name := Split(key)
	v, ok := p[category+"."+name]
	return v, ok
}

// String returns value for key as string, empty if missing
func (p Preferences) String(key string) string {
	v, ok := p.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch vv := v.(type) {
	case string:
		return vv
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

// Int returns value for key as int64, zero if missing or not numeric
func (p Preferences) Int(key string) int64 {
	v, ok := p.Get(key)
	if !ok {
		return 0
	}
	switch vv := v.(type) {
	case int:
		return int64(vv)
	case int64:
		return vv
	case float64:
		return int64(vv)
	case string:
		n, err := strconv.ParseInt(vv, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool returns value for key as bool, false if missing
func (p Preferences) Bool(key string) bool {
	v, ok := p.Get(key)
	if !ok {
		return false
	}
	switch vv := v.(type) {
	case bool:
		return vv
	case string:
		b, _ := strconv.ParseBool(vv)
		return b
	default:
		return false
	}
}

// Merge sets all fields of a category
func (p Preferences) Merge(category string, fields map[string]any) {
	for name, v := range fields {
		p[category+"."+name] = v
	}
}

// Category returns fields of a category keyed by name without the category prefix
func (p Preferences) Category(category string) map[string]any {
	res := map[string]any{}
	for key, v := range p {
		if c, name := Split(key); c == category {
			res[name] = v
		}
	}
	return res
}

// Categories returns sorted list of categories present
func (p Preferences) Categories() []string {
	set := map[string]bool{}
	for key := range p {
		c, _ := Split(key)
		set[c] = true
	}
	return slices.Sorted(maps.Keys(set))
}

// Clone makes a shallow copy, safe to hand over to another goroutine as long as values are not mutated
func (p Preferences) Clone() Preferences {
	return maps.Clone(p)
}
