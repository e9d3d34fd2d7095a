// Package refiner post-edits a draft machine translation into natural,
// everyday language with a chat model.
package refiner

import "context"

// Refiner reviews and rewrites a draft translation.
type Refiner interface {
	Refine(ctx context.Context, sourceLang, targetLang, sourceText, draftText string) (string, error)
}
