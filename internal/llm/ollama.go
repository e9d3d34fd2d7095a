package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient talks to a local Ollama server through /api/chat.
type OllamaClient struct {
	baseURL   string
	model     string
	pullModel bool
	client    *http.Client
	logger    *slog.Logger
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// NewOllamaClient creates a client for model at baseURL. When pullModel is
// set, IsAvailable downloads a missing model instead of failing.
func NewOllamaClient(baseURL, model string, pullModel bool, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		pullModel: pullModel,
		client:    &http.Client{Timeout: 120 * time.Second},
		logger:    logger,
	}
}

func (c *OllamaClient) Name() string {
	return "ollama"
}

func (c *OllamaClient) Model() string {
	return c.model
}

func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	body := ollamaChatRequest{
		Model:    c.model,
		Messages: req.Messages,
		Stream:   false,
		Options:  ollamaOptions(req.Options),
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Backend: c.Name(), Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{
			Backend:    c.Name(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected response (is model %q pulled?)", c.model),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if strings.TrimSpace(chatResp.Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:             chatResp.Message.Content,
		Model:            c.model,
		PromptTokens:     chatResp.PromptEvalCount,
		CompletionTokens: chatResp.EvalCount,
	}, nil
}

func ollamaOptions(o Options) map[string]any {
	opts := map[string]any{"temperature": o.Temperature}
	if o.TopP > 0 {
		opts["top_p"] = o.TopP
	}
	if o.MaxTokens > 0 {
		opts["num_predict"] = o.MaxTokens
	}
	if o.Seed != nil {
		opts["seed"] = *o.Seed
	}
	return opts
}

// IsAvailable checks that the server is up and the model is present,
// pulling it first when the client was configured to.
func (c *OllamaClient) IsAvailable(ctx context.Context) error {
	models, err := c.listModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m == c.model || m == c.model+":latest" {
			return nil
		}
	}

	if !c.pullModel {
		return fmt.Errorf("ollama model %q not found", c.model)
	}

	c.logger.Info("pulling ollama model", "model", c.model, "url", c.baseURL)
	return c.pull(ctx)
}

func (c *OllamaClient) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Backend: c.Name(), Message: "not available", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Backend: c.Name(), StatusCode: resp.StatusCode, Message: "tags request failed"}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *OllamaClient) pull(ctx context.Context) error {
	jsonData, err := json.Marshal(map[string]any{"name": c.model, "stream": false})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Pulls can take minutes; the caller's context bounds them instead.
	pullClient := &http.Client{Transport: c.client.Transport}
	resp, err := pullClient.Do(req)
	if err != nil {
		return &UpstreamError{Backend: c.Name(), Message: "pull failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Backend: c.Name(), StatusCode: resp.StatusCode, Message: "pull failed"}
	}

	c.logger.Info("ollama model ready", "model", c.model)
	return nil
}

var _ Client = (*OllamaClient)(nil)
