package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// GeminiOpenAIURL is Gemini's OpenAI-compatible endpoint; point the openai
// provider at it to use Gemini models.
const GeminiOpenAIURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// OpenAIClient uses go-openai against any OpenAI-compatible API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (c *OpenAIClient) Name() string {
	return "openai"
}

func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	// go-openai drops a zero temperature (omitempty), which the API reads as
	// its default of 1.0.
	temperature := float32(req.Options.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        float32(req.Options.TopP),
		MaxTokens:   req.Options.MaxTokens,
		Seed:        req.Options.Seed,
	})
	if err != nil {
		ue := &UpstreamError{Backend: c.Name(), Message: "chat completion failed", Cause: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			ue.StatusCode = apiErr.HTTPStatusCode
		}
		return nil, ue
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) IsAvailable(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return &UpstreamError{Backend: c.Name(), Message: fmt.Sprintf("cannot list models for %s", c.model), Cause: err}
	}
	return nil
}

var _ Client = (*OpenAIClient)(nil)
