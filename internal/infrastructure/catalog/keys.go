// Package catalog keeps the set of inventory item names known to exist in
// QuickBooks, loaded from an exported snapshot or from a live item query.
package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeKey case-folds and trims an item name
func NormalizeKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// KeySet is an immutable set of normalized item keys. Every name contributes
// its full key and, when hierarchical, the key of its last segment.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from raw item names
func NewKeySet(names ...string) KeySet {
	ks := make(KeySet, len(names)*2)
	for _, n := range names {
		ks.add(n)
	}
	return ks
}

func (ks KeySet) add(name string) {
	key := NormalizeKey(name)
	if key == "" {
		return
	}
	ks[key] = struct{}{}
	if i := strings.LastIndex(key, ":"); i >= 0 {
		if leaf := strings.TrimSpace(key[i+1:]); leaf != "" {
			ks[leaf] = struct{}{}
		}
	}
}

// with returns a copy of ks extended with name
func (ks KeySet) with(name string) KeySet {
	out := make(KeySet, len(ks)+2)
	for k := range ks {
		out[k] = struct{}{}
	}
	out.add(name)
	return out
}

// Has reports whether name is known
func (ks KeySet) Has(name string) bool {
	key := NormalizeKey(name)
	if key == "" {
		return false
	}
	_, ok := ks[key]
	return ok
}

// HasAny reports whether any candidate is known
func (ks KeySet) HasAny(candidates ...string) bool {
	for _, c := range candidates {
		if ks.Has(c) {
			return true
		}
	}
	return false
}

// sortedNames returns the distinct trimmed names in order
func sortedNames(names map[string]struct{}) []string {
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
