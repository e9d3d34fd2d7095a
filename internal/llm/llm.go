// Package llm provides the text-generation backends shared by the explainer
// and the LLM translation strategy.
package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a backend answered but produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options controls sampling. A zero Temperature is sent explicitly and means
// greedy decoding; TopP and MaxTokens are omitted when zero.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        *int
}

type Request struct {
	Messages []Message
	Options  Options
}

type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is a chat-style text-generation backend. Implementations are
// created once at startup and are safe for concurrent use.
type Client interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Completion, error)
	IsAvailable(ctx context.Context) error
}

// UpstreamError reports that a backend could not be reached or rejected the
// call.
type UpstreamError struct {
	Backend    string
	StatusCode int
	Message    string
	Cause      error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Backend, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// IsUpstream reports whether err was caused by an unreachable or failing
// backend rather than by unusable output.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
