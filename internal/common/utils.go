// Package common holds small helpers shared by the provider and lookup code.
package common

import "strings"

// ContainsAnyFold reports whether s contains any of subs, ignoring case.
// Empty substrings never match.
func ContainsAnyFold(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
