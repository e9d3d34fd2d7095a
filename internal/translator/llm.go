package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/placeholder"
	"github.com/valpere/vyakhya/internal/postprocess"
)

// LLMTranslator prompts a general-purpose chat model to translate. It is
// normally handed the same client as the explainer.
type LLMTranslator struct {
	client llm.Client
}

func NewLLMTranslator(client llm.Client) *LLMTranslator {
	return &LLMTranslator{client: client}
}

func (s *LLMTranslator) Name() string {
	return "llm"
}

func (s *LLMTranslator) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	text, originals := placeholder.Protect(req.Text)
	if strings.TrimSpace(text) == "" {
		return fail(result, fmt.Errorf("text is required"))
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: buildTranslationPrompt(req.SourceLang, req.TargetLang, len(originals) > 0)},
			{Role: llm.RoleUser, Content: text},
		},
		Options: llm.Options{Temperature: 0},
	})
	if err != nil {
		return fail(result, fmt.Errorf("translation failed: %w", err))
	}

	translated := postprocess.Clean(placeholder.Restore(completion.Text, originals))
	if translated == "" {
		return fail(result, fmt.Errorf("translation failed: %w", llm.ErrEmptyCompletion))
	}

	result.TranslatedText = translated
	result.Metadata = map[string]string{
		"backend": s.client.Name(),
		"model":   completion.Model,
	}
	return result, nil
}

func (s *LLMTranslator) IsAvailable(ctx context.Context) error {
	return s.client.IsAvailable(ctx)
}

func buildTranslationPrompt(sourceLang, targetLang string, hasMarkers bool) string {
	source := "English"
	if sourceLang != "" && sourceLang != "auto" {
		source = LanguageName(sourceLang)
	}
	target := LanguageName(targetLang)

	prompt := fmt.Sprintf("You are a helpful assistant that translates %s into natural, simple, daily-use conversational %s. "+
		"Output only the translated %s text with no additional text, notes or transliteration.", source, target, target)
	if hasMarkers {
		prompt += " " + placeholder.InstructionHint()
	}
	return prompt
}
