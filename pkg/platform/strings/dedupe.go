// Package strings provides string helpers shared by the normalizer and the
// snapshot builder.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blank values from a slice, trimming
// whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  Usama Bin Ladin ", "UBL", "UBL", ""})
//	// Returns: []string{"Usama Bin Ladin", "UBL"}
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
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// UniqueFields splits s on whitespace and hyphens and returns each token once,
// in first-seen order.
func UniqueFields(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	return result
}

// CollapseSpace trims s and replaces every run of whitespace with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
