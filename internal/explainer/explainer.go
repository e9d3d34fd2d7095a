// Package explainer produces an English explanation of a sentence as it
// reads within a surrounding paragraph.
package explainer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/markdown"
	"github.com/valpere/vyakhya/internal/placeholder"
	"github.com/valpere/vyakhya/internal/postprocess"
)

// Mode selects how the backend decodes.
type Mode string

const (
	// ModeSample draws tokens with temperature / top-p; identical requests
	// may produce different explanations.
	ModeSample Mode = "sample"
	// ModeGreedy decodes at temperature 0 with a fixed seed.
	ModeGreedy Mode = "greedy"
)

// Style selects prompt wording and the default token budget.
type Style string

const (
	StyleDetailed Style = "detailed"
	StyleBrief    Style = "brief"
)

const (
	detailedMaxTokens = 512
	briefMaxTokens    = 60
)

type Config struct {
	Mode          Mode
	Style         Style
	Temperature   float64
	TopP          float64
	Seed          int
	MaxTokens     int
	StripMarkdown bool
}

// Result always comes back non-nil. Text is empty exactly when Error is set.
type Result struct {
	Text     string            `json:"text"`
	Model    string            `json:"model"`
	Latency  time.Duration     `json:"latency"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Generator is safe for concurrent use when its llm.Client is.
type Generator struct {
	client llm.Client
	cfg    Config
}

func New(client llm.Client, cfg Config) *Generator {
	if cfg.Mode == "" {
		cfg.Mode = ModeSample
	}
	if cfg.Style == "" {
		cfg.Style = StyleDetailed
	}
	return &Generator{client: client, cfg: cfg}
}

func (g *Generator) Name() string {
	return g.client.Name()
}

func (g *Generator) IsAvailable(ctx context.Context) error {
	return g.client.IsAvailable(ctx)
}

// Explain asks the backend to explain sentence within paragraph. Any failure,
// including an empty or artifact-only answer, yields an empty Result.Text
// and a non-nil error.
func (g *Generator) Explain(ctx context.Context, paragraph, sentence string) (*Result, error) {
	result := &Result{Model: g.client.Model()}
	start := time.Now()
	defer func() { result.Latency = time.Since(start) }()

	if strings.TrimSpace(paragraph) == "" || strings.TrimSpace(sentence) == "" {
		result.Error = "paragraph and sentence are required"
		return result, fmt.Errorf("paragraph and sentence are required")
	}

	completion, err := g.client.Complete(ctx, llm.Request{
		Messages: g.buildMessages(paragraph, sentence),
		Options:  g.options(),
	})
	if err != nil {
		result.Error = fmt.Sprintf("generation failed: %v", err)
		return result, fmt.Errorf("generation failed: %w", err)
	}

	text := postprocess.Clean(completion.Text)
	if g.cfg.StripMarkdown {
		text = flatten(text)
	}
	if text == "" {
		result.Error = "explanation is empty after cleanup"
		return result, fmt.Errorf("explanation is empty after cleanup: %w", llm.ErrEmptyCompletion)
	}

	result.Text = text
	if completion.Model != "" {
		result.Model = completion.Model
	}
	result.Metadata = map[string]string{
		"backend":           g.client.Name(),
		"mode":              string(g.cfg.Mode),
		"prompt_tokens":     fmt.Sprintf("%d", completion.PromptTokens),
		"completion_tokens": fmt.Sprintf("%d", completion.CompletionTokens),
	}
	return result, nil
}

// flatten drops markdown syntax but keeps code spans and URLs verbatim, so
// the translator can still shield them.
func flatten(text string) string {
	protected, originals := placeholder.Protect(text)
	return placeholder.Restore(markdown.ToPlainText(protected), originals)
}

func (g *Generator) options() llm.Options {
	maxTokens := g.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = detailedMaxTokens
		if g.cfg.Style == StyleBrief {
			maxTokens = briefMaxTokens
		}
	}

	if g.cfg.Mode == ModeGreedy {
		seed := g.cfg.Seed
		return llm.Options{Temperature: 0, MaxTokens: maxTokens, Seed: &seed}
	}
	return llm.Options{
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
		MaxTokens:   maxTokens,
	}
}

func (g *Generator) buildMessages(paragraph, sentence string) []llm.Message {
	if g.cfg.Style == StyleBrief {
		return []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a helpful assistant. Given a context paragraph, briefly explain the requested sentence or word in one or two sentences."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Context: %s\nSentence: %q\n\nBrief Explanation:", paragraph, sentence)},
		}
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a helpful AI assistant. Explain the given sentence using the paragraph it appears in as context."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Context:\n%s\n\nSentence to explain:\n%s\n\nContextual Explanation:", paragraph, sentence)},
	}
}
