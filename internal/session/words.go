package session

import "strings"

// splitWords splits a rendered prompt on runs of whitespace.
func splitWords(s string) []string { return strings.Fields(s) }
