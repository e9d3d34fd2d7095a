package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterClient calls the OpenRouter chat completions API.
type OpenRouterClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouterClient(apiKey, baseURL, model string) *OpenRouterClient {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	return &OpenRouterClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *OpenRouterClient) Name() string {
	return "openrouter"
}

func (c *OpenRouterClient) Model() string {
	return c.model
}

func (c *OpenRouterClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key required")
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": req.Options.Temperature,
	}
	if req.Options.TopP > 0 {
		body["top_p"] = req.Options.TopP
	}
	if req.Options.MaxTokens > 0 {
		body["max_tokens"] = req.Options.MaxTokens
	}
	if req.Options.Seed != nil {
		body["seed"] = *req.Options.Seed
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://vyakhya.local")
	httpReq.Header.Set("X-Title", "Vyakhya")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Backend: c.Name(), Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = "unexpected response"
		}
		return nil, &UpstreamError{Backend: c.Name(), StatusCode: resp.StatusCode, Message: msg}
	}

	var chatResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:             chatResp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenRouterClient) IsAvailable(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("OpenRouter API key not configured")
	}
	return nil
}

var _ Client = (*OpenRouterClient)(nil)
