// Package placeholder shields fragments that must survive translation
// verbatim (code, URLs, e-mail addresses) behind numbered [PHn] markers.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
)

// protected is applied in order; earlier patterns win over overlapping
// later ones because their matches are already replaced.
var protected = []*regexp.Regexp{
	regexp.MustCompile("(?s)```.*?```"),
	regexp.MustCompile("`[^`\n]+`"),
	regexp.MustCompile(`https?://[^\s<>()\[\]"']+[^\s<>()\[\]"'.,;:!?]`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
}

var reMarker = regexp.MustCompile(`\[\s*PH\s*(\d+)\s*\]`)

// Protect returns text with every protected fragment replaced by [PHn] and
// the fragments indexed by n.
func Protect(text string) (string, []string) {
	var originals []string
	for _, re := range protected {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			originals = append(originals, match)
			return Marker(len(originals) - 1)
		})
	}
	return text, originals
}

// Restore puts the fragments back. Translation models sometimes add spaces
// inside the brackets ("[ PH0 ]"); those are accepted too. Unknown indices
// are left untouched.
func Restore(text string, originals []string) string {
	if len(originals) == 0 {
		return text
	}
	return reMarker.ReplaceAllStringFunc(text, func(match string) string {
		sub := reMarker.FindStringSubmatch(match)
		idx, err := strconv.Atoi(sub[1])
		if err != nil || idx >= len(originals) {
			return match
		}
		return originals[idx]
	})
}

// Missing lists the indices whose markers no longer appear in text.
func Missing(text string, originals []string) []int {
	seen := make(map[int]bool, len(originals))
	for _, sub := range reMarker.FindAllStringSubmatch(text, -1) {
		if idx, err := strconv.Atoi(sub[1]); err == nil {
			seen[idx] = true
		}
	}
	var missing []int
	for i := range originals {
		if !seen[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

func Marker(i int) string {
	return fmt.Sprintf("[PH%d]", i)
}

// InstructionHint is appended to LLM prompts whenever markers are present.
func InstructionHint() string {
	return "Keep every [PHn] marker exactly as written; do not translate, move or drop it."
}
