package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/vyakhya/internal/placeholder"
)

type GoogleConfig struct {
	Credentials string
	APIKey      string
	ProjectID   string
}

// GoogleService translates with Cloud Translation (neural MT). The client is
// created once and reused; call Close on shutdown.
type GoogleService struct {
	client    *translate.Client
	projectID string
}

func NewGoogleService(ctx context.Context, cfg GoogleConfig) (*GoogleService, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &GoogleService{client: client, projectID: cfg.ProjectID}, nil
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if strings.TrimSpace(req.Text) == "" {
		return fail(result, fmt.Errorf("text is required"))
	}

	target, err := language.Parse(req.TargetLang)
	if err != nil {
		return fail(result, fmt.Errorf("invalid target language: %w", err))
	}

	opts := &translate.Options{Format: translate.Text}
	if req.SourceLang != "" && req.SourceLang != "auto" {
		source, err := language.Parse(req.SourceLang)
		if err != nil {
			return fail(result, fmt.Errorf("invalid source language: %w", err))
		}
		opts.Source = source
	}

	text, originals := placeholder.Protect(req.Text)
	translations, err := s.client.Translate(ctx, []string{text}, target, opts)
	if err != nil {
		return fail(result, fmt.Errorf("translation failed: %w", err))
	}
	if len(translations) == 0 || strings.TrimSpace(translations[0].Text) == "" {
		return fail(result, fmt.Errorf("no translation returned"))
	}

	result.TranslatedText = strings.TrimSpace(placeholder.Restore(translations[0].Text, originals))
	result.Metadata = map[string]string{"target": target.String()}
	if translations[0].Source != language.Und {
		result.Metadata["detected_source"] = translations[0].Source.String()
	}
	return result, nil
}

// IsAvailable lists supported languages, which fails on bad credentials or
// quota, and checks that Telugu is among them.
func (s *GoogleService) IsAvailable(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("google translate client not initialised")
	}
	langs, err := s.client.SupportedLanguages(ctx, language.English)
	if err != nil {
		return fmt.Errorf("google translate not available: %w", err)
	}
	for _, l := range langs {
		if base, _ := l.Tag.Base(); base.String() == "te" {
			return nil
		}
	}
	return fmt.Errorf("google translate does not list Telugu")
}

func (s *GoogleService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
