// Package strings normalizes caller-supplied string lists such as
// comma-separated query filters.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence's position.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimLower also lowercases, so "Pending" and "pending" collapse.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

// SplitList splits a comma-separated value and normalizes it with
// DedupeAndTrimLower. An empty input yields nil.
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return DedupeAndTrimLower(strings.Split(v, ","))
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
