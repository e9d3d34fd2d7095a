package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/valpere/vyakhya/internal/chunker"
	"github.com/valpere/vyakhya/internal/placeholder"
)

type NLLBConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	// SourceToken and TargetToken are the FLORES-200 codes the model is
	// forced to read and emit, e.g. eng_Latn and tel_Telu.
	SourceToken string
	TargetToken string
	// MaxChars bounds each chunk sent to the model; MaxLength is the
	// generation limit forwarded to it.
	MaxChars  int
	MaxLength int
	Timeout   time.Duration
}

// NLLBService calls a seq2seq translation model served behind the Hugging
// Face inference protocol: POST {base}/models/{model} with
// {"inputs": [...], "parameters": {"src_lang", "tgt_lang", "max_length"}}.
type NLLBService struct {
	cfg    NLLBConfig
	client *resty.Client
}

type nllbRequest struct {
	Inputs     []string       `json:"inputs"`
	Parameters nllbParameters `json:"parameters"`
}

type nllbParameters struct {
	SrcLang   string `json:"src_lang"`
	TgtLang   string `json:"tgt_lang"`
	MaxLength int    `json:"max_length,omitempty"`
}

type nllbTranslation struct {
	TranslationText string `json:"translation_text"`
}

type nllbError struct {
	Error string `json:"error"`
}

func NewNLLBService(cfg NLLBConfig) *NLLBService {
	if cfg.SourceToken == "" {
		cfg.SourceToken = "eng_Latn"
	}
	if cfg.TargetToken == "" {
		cfg.TargetToken = "tel_Telu"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &NLLBService{cfg: cfg, client: client}
}

func (s *NLLBService) Name() string {
	return "nllb"
}

func (s *NLLBService) modelPath() string {
	return "/models/" + s.cfg.Model
}

// Translate protects code and URLs, splits the text into model-sized chunks,
// translates them in one batch and joins the results in order.
func (s *NLLBService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	result := &ServiceResult{ServiceName: s.Name()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	text, originals := placeholder.Protect(req.Text)
	chunks := chunker.Chunk(text, s.cfg.MaxChars)
	if len(chunks) == 0 {
		return fail(result, fmt.Errorf("text is required"))
	}

	var translations []nllbTranslation
	var apiErr nllbError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(nllbRequest{
			Inputs: chunks,
			Parameters: nllbParameters{
				SrcLang:   s.cfg.SourceToken,
				TgtLang:   s.cfg.TargetToken,
				MaxLength: s.cfg.MaxLength,
			},
		}).
		SetResult(&translations).
		SetError(&apiErr).
		// Some inference servers answer without a JSON content type.
		ForceContentType("application/json").
		Post(s.modelPath())
	if err != nil {
		return fail(result, fmt.Errorf("request failed: %w", err))
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		return fail(result, fmt.Errorf("API returned status %d: %s", resp.StatusCode(), msg))
	}

	if len(translations) != len(chunks) {
		return fail(result, fmt.Errorf("expected %d translations, got %d", len(chunks), len(translations)))
	}

	parts := make([]string, 0, len(translations))
	for i, t := range translations {
		part := strings.TrimSpace(t.TranslationText)
		if part == "" {
			return fail(result, fmt.Errorf("chunk %d translated to empty text", i))
		}
		parts = append(parts, part)
	}

	result.TranslatedText = placeholder.Restore(strings.Join(parts, " "), originals)
	result.Metadata = map[string]string{
		"model":    s.cfg.Model,
		"tgt_lang": s.cfg.TargetToken,
		"chunks":   fmt.Sprintf("%d", len(chunks)),
	}
	if missing := placeholder.Missing(strings.Join(parts, " "), originals); len(missing) > 0 {
		result.Metadata["lost_placeholders"] = fmt.Sprintf("%v", missing)
	}
	return result, nil
}

// IsAvailable treats any non-5xx answer from the model endpoint as reachable.
func (s *NLLBService) IsAvailable(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get(s.modelPath())
	if err != nil {
		return fmt.Errorf("NLLB endpoint not available: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("NLLB endpoint returned status %d", resp.StatusCode())
	}
	return nil
}
