// Package util contains misc internal utilities.
package util

// UniqueString removes duplicates from a slice of strings, preserving the
// order of first appearance.
// e.g., []string{"a", "b", "a"} => []string{"a", "b"}
func UniqueString(s []string) []string {
	seen := make(map[string]bool, len(s))
	out := make([]string, 0, len(s))
	for _, v := range s {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// IndexOfString returns the index of needle in haystack, or -1 if absent
func IndexOfString(haystack []string, needle string) int {
	for i, v := range haystack {
		if v == needle {
			return i
		}
	}
	return -1
}

// MoveToFront moves the element at index i to the head of the slice,
// shifting the elements before it down.  The input is not modified.
func MoveToFront(s []string, i int) []string {
	out := make([]string, 0, len(s))
	if i <= 0 || i >= len(s) {
		return append(out, s...)
	}
	out = append(out, s[i])
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// RemoveString returns a copy of s without the first occurrence of needle
func RemoveString(s []string, needle string) []string {
	out := make([]string, 0, len(s))
	removed := false
	for _, v := range s {
		if !removed && v == needle {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out
}
