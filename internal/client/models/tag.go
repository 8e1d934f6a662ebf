package models

import "strings"

// Tag is one row of the tag index. Name keeps the display casing chosen by
// the first writer; Fold is the trimmed, lower-cased form used for dedup.
type Tag struct {
	Name     string
	Fold     string
	RefCount int
}

// FoldTagName normalizes a tag name for case-insensitive comparison:
// whitespace is trimmed and the result lower-cased. The display form keeps
// the original casing.
func FoldTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTags trims the given names, drops empties, and deduplicates them
// case-insensitively, keeping the first casing seen.
func NormalizeTags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			continue
		}
		fold := FoldTagName(trimmed)
		if _, ok := seen[fold]; ok {
			continue
		}
		seen[fold] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
