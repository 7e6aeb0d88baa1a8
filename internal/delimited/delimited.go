// Package delimited handles the comma-joined lists stored in text columns
// (job sources, search terms, matched words).
package delimited

import "strings"

const separator = ","

// Parse splits s on commas, trimming whitespace and dropping empty entries.
func Parse(s string) []string {
	parts := strings.Split(s, separator)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		result = append(result, part)
	}

	return result
}

// Join is the inverse of Parse.
func Join(items []string) string {
	return strings.Join(items, separator)
}

// Union keeps existing in its order and appends incoming entries that were not seen yet.
func Union(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	result := make([]string, 0, len(existing)+len(incoming))

	for _, list := range [][]string{existing, incoming} {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			result = append(result, item)
		}
	}

	return result
}
