package pkg

import "strings"

// Contains check slice have val
func Contains[T comparable](slice []T, val T) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}

// UniqueIDs trim ids, drop blanks and duplicates, keep first-seen order
func UniqueIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
