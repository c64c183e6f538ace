// Package utils holds small helpers shared by the HTTP layer.
package utils

import (
	"cmp"
	"strconv"
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// Page returns the 1-based page of items with the given size and the number
// of pages. Out-of-range pages are empty.
func Page[T any](items []T, page, size int) ([]T, int) {
	if size < 1 {
		size = 1
	}
	pages := (len(items) + size - 1) / size
	if page < 1 || page > pages {
		return []T{}, pages
	}
	start := (page - 1) * size
	end := min(start+size, len(items))
	return items[start:end], pages
}
