// Package translator converts explanations into the target language. Each
// strategy implements TranslationService and is chosen by configuration.
package translator

import (
	"context"
	"time"
)

type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// ServiceResult is always returned non-nil; on failure Error is set and
// TranslatedText is empty.
type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Metadata       map[string]string `json:"metadata"`
	Latency        time.Duration     `json:"latency"`
	Error          string            `json:"error,omitempty"`
}

// TranslationService implementations are safe for concurrent use.
type TranslationService interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
	IsAvailable(ctx context.Context) error
}

// fail records msg on result and returns it with err for a one-line return.
func fail(result *ServiceResult, err error) (*ServiceResult, error) {
	result.TranslatedText = ""
	result.Error = err.Error()
	return result, err
}
