// Package postprocess removes common LLM artifacts from generated text.
//
// It runs on every explanation and on translations produced by the LLM
// strategy before the text reaches the caller.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips, in order: reasoning blocks, prompt echoes such as
// "Contextual Explanation:" and a pair of quotes wrapping the whole text.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// RE2 has no backreferences, so every tag pair is spelled out.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<think>.*?</think>|<thinking>.*?</thinking>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opening tag with no closing tag means generation stopped mid-thought.
var openThinkingRe = regexp.MustCompile(`(?is)(?:<think>|<thinking>|<reasoning>|<reflection>).*$`)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = openThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoPatterns are anchored at the start and require a trailing colon so a
// sentence that merely begins with "Explanation" survives.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the|a] [contextual|brief] explanation:"
	regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course)[,.!]?\s*)?here(?:'s| is)(?: the| a| an)? (?:contextual |brief |short )?(?:explanation|telugu translation|translation)(?: in telugu)?\s*:`),
	// "[Contextual|Brief] Explanation:" and the markdown-bold variant.
	regexp.MustCompile(`(?i)^\**(?:contextual |brief |short )?explanation\**\s*:\**`),
	// "[Telugu] Translation:"
	regexp.MustCompile(`(?i)^\**(?:telugu )?translation\**\s*:\**`),
	// "అనువాదం:" (Telugu for "translation")
	regexp.MustCompile(`^అనువాదం\s*:`),
}

func removeEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'«':  '»',
	'“':  '”',
	'‘':  '’',
}

func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	closing, ok := quotePairs[runes[0]]
	if !ok || runes[len(runes)-1] != closing {
		return text
	}
	inner := runes[1 : len(runes)-1]
	// "a" and "b" is two quotations, not one wrapped string.
	for _, r := range inner {
		if r == runes[0] || r == closing {
			return text
		}
	}
	return strings.TrimSpace(string(inner))
}
