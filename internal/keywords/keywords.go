// Package keywords implements the substring indicator matching that every
// stage scorer and analyzer is built on. Matching is case-sensitive on the
// input; callers lowercase text before asking.
package keywords

import "strings"

// Any reports whether text contains at least one of the indicators.
func Any(text string, indicators ...string) bool {
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

// Count returns how many distinct indicators occur in text.
func Count(text string, indicators ...string) int {
	n := 0
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			n++
		}
	}
	return n
}

// Occurrences sums strings.Count for every indicator.
func Occurrences(text string, indicators ...string) int {
	n := 0
	for _, ind := range indicators {
		n += strings.Count(text, ind)
	}
	return n
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Tail returns the last n runes of s.
func Tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
