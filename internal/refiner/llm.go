package refiner

import (
	"context"
	"fmt"

	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/postprocess"
)

// LLMRefiner asks a chat model to smooth a literal draft into simple
// conversational language.
type LLMRefiner struct {
	client llm.Client
}

func NewLLMRefiner(client llm.Client) *LLMRefiner {
	return &LLMRefiner{client: client}
}

// Refine returns the rewritten draft. An answer that is empty after cleanup
// keeps the draft unchanged.
func (r *LLMRefiner) Refine(ctx context.Context, sourceLang, targetLang, sourceText, draftText string) (string, error) {
	completion, err := r.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: buildRefinementPrompt(targetLang)},
			{Role: llm.RoleUser, Content: buildRefinementInput(sourceLang, targetLang, sourceText, draftText)},
		},
		Options: llm.Options{Temperature: 0},
	})
	if err != nil {
		return "", fmt.Errorf("refinement request failed: %w", err)
	}

	refined := postprocess.Clean(completion.Text)
	if refined == "" {
		return draftText, nil
	}
	return refined, nil
}

func buildRefinementPrompt(targetLang string) string {
	return fmt.Sprintf(`You are an editor who rewrites machine translations into natural, simple, daily-use conversational %[1]s.

Keep every fact and name from the original. Replace stiff or literal phrasing with what a native speaker would say in conversation. Keep technical terms and anything inside [PHn] markers exactly as written.

If the draft already reads naturally, return it unchanged.

Output ONLY the %[1]s text, with no notes, labels or transliteration.`, targetLang)
}

func buildRefinementInput(sourceLang, targetLang, sourceText, draftText string) string {
	return fmt.Sprintf("ORIGINAL (%s):\n%s\n\nDRAFT (%s):\n%s", sourceLang, sourceText, targetLang, draftText)
}
