// Package chunker splits text for translation models with a bounded input
// length. Sentences are kept whole whenever they fit.
package chunker

import (
	"strings"
	"unicode"
)

// Chunk packs consecutive sentences into pieces of at most maxChars runes.
// A sentence longer than maxChars is split at word boundaries, and a single
// word longer than maxChars is cut hard. maxChars <= 0 disables splitting.
func Chunk(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || runeLen(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, piece := range pieces(Sentences(text), maxChars) {
		if current.Len() == 0 {
			current.WriteString(piece)
			continue
		}
		if runeLen(current.String())+1+runeLen(piece) > maxChars {
			flush()
			current.WriteString(piece)
			continue
		}
		current.WriteByte(' ')
		current.WriteString(piece)
	}
	flush()

	return chunks
}

// Sentences splits text after '.', '!', '?', '।' and '॥' when followed by
// whitespace, and at blank lines. Terminators stay with their sentence.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0

	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			emit(i)
			continue
		}
		if isTerminator(r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			emit(i + 1)
		}
	}
	emit(len(runes))

	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '।', '॥':
		return true
	}
	return false
}

// pieces breaks any sentence longer than maxChars into word-bounded parts.
func pieces(sentences []string, maxChars int) []string {
	var out []string
	for _, s := range sentences {
		if runeLen(s) <= maxChars {
			out = append(out, s)
			continue
		}

		var part []rune
		for _, word := range strings.Fields(s) {
			w := []rune(word)
			for len(w) > maxChars {
				if len(part) > 0 {
					out = append(out, string(part))
					part = nil
				}
				out = append(out, string(w[:maxChars]))
				w = w[maxChars:]
			}
			switch {
			case len(part) == 0:
				part = append(part, w...)
			case len(part)+1+len(w) > maxChars:
				out = append(out, string(part))
				part = append([]rune(nil), w...)
			default:
				part = append(part, ' ')
				part = append(part, w...)
			}
		}
		if len(part) > 0 {
			out = append(out, string(part))
		}
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
