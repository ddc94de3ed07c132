// Package preview shows the operator what the generated slide will read:
// placeholder tokens in the slide text are swapped for the current values and
// the result can be drawn as a simple SVG card.
package preview

import (
	"sort"
	"strings"
)

// Substitute replaces every placeholder token found in text with its value.
// Matching is a single left-to-right pass; at any position the longest token
// wins, and substituted values are never scanned again.
func Substitute(text string, replacements map[string]string) string {
	if text == "" || len(replacements) == 0 {
		return text
	}
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return text
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, replacements[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Unresolved returns the placeholder keys that do not occur in text, sorted.
// The backend silently skips them, so editors can flag them.
func Unresolved(text string, replacements map[string]string) []string {
	var out []string
	for k := range replacements {
		if k == "" || !strings.Contains(text, k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
