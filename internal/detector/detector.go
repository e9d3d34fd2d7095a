// Package detector identifies the language of generated text.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// DefaultLanguages covers English input plus the Indic languages a Telugu
// translation is most likely to be confused with.
var DefaultLanguages = []lingua.Language{
	lingua.English,
	lingua.Telugu,
	lingua.Tamil,
	lingua.Hindi,
	lingua.Marathi,
	lingua.Bengali,
	lingua.Gujarati,
	lingua.Punjabi,
	lingua.Urdu,
}

// Detector wraps a lingua detector. Building one loads language models, so
// create it once and share it; detection is safe for concurrent use.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to languages, or DefaultLanguages when
// none are given.
func New(languages ...lingua.Language) *Detector {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text, e.g. "te".
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
