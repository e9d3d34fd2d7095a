package translator

import (
	"context"
	"time"

	"github.com/valpere/vyakhya/internal/placeholder"
	"github.com/valpere/vyakhya/internal/refiner"
)

// RefinedService runs a second, editing pass over another service's
// output. A failed edit keeps the draft and is recorded in Metadata.
type RefinedService struct {
	base    TranslationService
	refiner refiner.Refiner
}

func NewRefinedService(base TranslationService, r refiner.Refiner) *RefinedService {
	return &RefinedService{base: base, refiner: r}
}

func (s *RefinedService) Name() string {
	return s.base.Name() + "+refine"
}

func (s *RefinedService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()
	result, err := s.base.Translate(ctx, req)
	if err != nil {
		return result, err
	}
	if result.Metadata == nil {
		result.Metadata = map[string]string{}
	}

	draft, originals := placeholder.Protect(result.TranslatedText)
	refined, err := s.refiner.Refine(ctx, LanguageName(req.SourceLang), LanguageName(req.TargetLang), req.Text, draft)
	switch {
	case err != nil:
		result.Metadata["refine_error"] = err.Error()
	case refined == "":
	case len(placeholder.Missing(refined, originals)) > 0:
		result.Metadata["refine_error"] = "refinement dropped protected fragments"
	default:
		result.Metadata["draft"] = result.TranslatedText
		result.TranslatedText = placeholder.Restore(refined, originals)
	}

	result.ServiceName = s.Name()
	result.Latency = time.Since(start)
	return result, nil
}

func (s *RefinedService) IsAvailable(ctx context.Context) error {
	return s.base.IsAvailable(ctx)
}

// Close closes the wrapped service when it holds resources.
func (s *RefinedService) Close() error {
	if c, ok := s.base.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
