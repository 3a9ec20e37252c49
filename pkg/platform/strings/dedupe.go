// Package strings provides string slice helpers shared by request parsing.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim removes duplicates and blank entries, trimming whitespace
// from each element. First-seen order is preserved.
//
//	DedupeAndTrim([]string{"  paris ", "rome", "paris", "", "  "})
//	// []string{"paris", "rome"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// DedupeSorted is DedupeAndTrim followed by a lexical sort. Writers that touch
// many rows in one transaction use it so concurrent batches lock rows in the
// same order.
func DedupeSorted(values []string) []string {
	result := DedupeAndTrim(values)
	slices.Sort(result)
	return result
}
