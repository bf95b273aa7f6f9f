package stepflow

import "strings"

const (
	// AnyTag is the tag of a binding registered without one. It matches every scenario.
	AnyTag = "*"

	// MatchAllPattern is the pattern key under which hooks are indexed.
	MatchAllPattern = "/.*/"
)

// NormalizeTag prepends "@" to a bare tag. Tags that already contain "@" and
// the empty tag are returned unchanged, so the function is idempotent.
func NormalizeTag(tag string) string {
	if tag == "" || strings.Contains(tag, "@") {
		return tag
	}
	return "@" + tag
}

// uniqueTags drops duplicates while keeping the first-seen order. Feature and
// scenario tags are both inherited by a pickle and may repeat.
func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
