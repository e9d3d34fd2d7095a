// Package validator checks that a translation is written in the target
// language before it is returned to a caller.
package validator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/valpere/vyakhya/internal/detector"
)

// minDetectionLength is the rune count below which statistical detection is
// too unreliable to reject anything.
const minDetectionLength = 20

// minScriptRatio is the share of letters that must belong to the target
// script. Explanations routinely keep Latin names and terms.
const minScriptRatio = 0.5

var scripts = map[string]*unicode.RangeTable{
	"te": unicode.Telugu,
	"ta": unicode.Tamil,
	"kn": unicode.Kannada,
	"ml": unicode.Malayalam,
	"hi": unicode.Devanagari,
	"mr": unicode.Devanagari,
	"bn": unicode.Bengali,
	"gu": unicode.Gujarati,
	"pa": unicode.Gurmukhi,
}

// Validator is safe for concurrent use.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator. det may be nil to validate by script only.
func New(det *detector.Detector) *Validator {
	return &Validator{det: det}
}

// IsValid reports whether translatedText looks like targetLang. For languages
// with a dedicated script (Telugu uses U+0C00–U+0C7F) most letters must be in
// that script; otherwise the language detector decides. Texts that are too
// short or ambiguous to judge pass.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	targetLang = strings.ToLower(strings.TrimSpace(targetLang))
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if table, ok := scripts[targetLang]; ok {
		ratio := ScriptRatio(text, table)
		if ratio < minScriptRatio {
			return false, fmt.Errorf("expected %s script, only %.0f%% of letters match", targetLang, ratio*100)
		}
		return true, nil
	}

	if v.det == nil || len([]rune(text)) < minDetectionLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}
	if detected != targetLang {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}
	return true, nil
}

// ScriptRatio returns the fraction of letters (and combining marks) in text
// that belong to table. Text without letters yields 0.
func ScriptRatio(text string, table *unicode.RangeTable) float64 {
	var letters, inScript int
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			continue
		}
		letters++
		if unicode.Is(table, r) {
			inScript++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(inScript) / float64(letters)
}
