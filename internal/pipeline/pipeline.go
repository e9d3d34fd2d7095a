// Package pipeline runs one explain-and-translate request through its
// stages: validating, explaining, translating and responding. Every model
// call passes through a shared inference gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/valpere/vyakhya/internal"
	"github.com/valpere/vyakhya/internal/explainer"
	"github.com/valpere/vyakhya/internal/translator"
)

// Explainer is satisfied by *explainer.Generator.
type Explainer interface {
	Name() string
	Explain(ctx context.Context, paragraph, sentence string) (*explainer.Result, error)
	IsAvailable(ctx context.Context) error
}

// ScriptValidator is satisfied by *validator.Validator.
type ScriptValidator interface {
	IsValid(text, targetLang string) (bool, error)
}

type Config struct {
	SourceLang string
	TargetLang string
	// MaxConcurrent bounds in-flight model calls across all requests.
	MaxConcurrent int64
	// ValidateScript rejects translations not written in TargetLang's script.
	ValidateScript bool
}

// Pipeline is built once at startup and shared by all requests.
type Pipeline struct {
	explainer  Explainer
	translator translator.TranslationService
	validator  ScriptValidator
	config     Config
	gate       *semaphore.Weighted
	ready      atomic.Bool
	logger     *slog.Logger
}

// New creates a Pipeline that is not ready until Warmup succeeds or
// MarkReady is called. validator may be nil.
func New(exp Explainer, tr translator.TranslationService, val ScriptValidator, config Config, logger *slog.Logger) *Pipeline {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1
	}
	if config.TargetLang == "" {
		config.TargetLang = "te"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		explainer:  exp,
		translator: tr,
		validator:  val,
		config:     config,
		gate:       semaphore.NewWeighted(config.MaxConcurrent),
		logger:     logger,
	}
}

func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

func (p *Pipeline) MarkReady() {
	p.ready.Store(true)
}

// Warmup checks both backends once and marks the pipeline ready when both
// answer. Probes that load a model go through the gate like any other call.
func (p *Pipeline) Warmup(ctx context.Context) error {
	start := time.Now()

	if err := p.withGate(ctx, p.explainer.IsAvailable); err != nil {
		return fmt.Errorf("explainer %s not available: %w", p.explainer.Name(), err)
	}
	if err := p.withGate(ctx, p.translator.IsAvailable); err != nil {
		return fmt.Errorf("translator %s not available: %w", p.translator.Name(), err)
	}

	p.MarkReady()
	p.logger.Info("backends ready",
		"explainer", p.explainer.Name(),
		"translator", p.translator.Name(),
		"duration", time.Since(start))
	return nil
}

// Run validates req, explains the sentence and translates the explanation.
// It returns either a response with both fields set or an error from this
// package's taxonomy, never a partial response.
func (p *Pipeline) Run(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error) {
	logger := p.logger.With("request_id", req.ID)

	logger.Debug("validating")
	if err := normalize(&req); err != nil {
		return nil, err
	}

	if !p.Ready() {
		return nil, ErrServiceUnavailable
	}

	logger.Debug("explaining", "backend", p.explainer.Name())
	explanation, err := p.explain(ctx, req)
	if err != nil {
		logger.Error("explanation failed", "error", err)
		return nil, err
	}

	logger.Debug("translating", "backend", p.translator.Name())
	translation, err := p.translate(ctx, explanation)
	if err != nil {
		logger.Error("translation failed", "error", err)
		return nil, err
	}

	logger.Debug("responding")
	return &internal.ExplainResponse{
		Explanation: explanation,
		Translation: translation,
	}, nil
}

func (p *Pipeline) explain(ctx context.Context, req internal.ExplainRequest) (string, error) {
	var result *explainer.Result
	err := p.withGate(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.explainer.Explain(ctx, req.Paragraph, req.Sentence)
		return err
	})
	if err != nil {
		return "", &GenerationError{Cause: err}
	}
	if result == nil || strings.TrimSpace(result.Text) == "" {
		return "", &GenerationError{Cause: errors.New("explainer returned empty text")}
	}
	return result.Text, nil
}

func (p *Pipeline) translate(ctx context.Context, text string) (string, error) {
	var result *translator.ServiceResult
	err := p.withGate(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.translator.Translate(ctx, translator.TranslateRequest{
			Text:       text,
			SourceLang: p.config.SourceLang,
			TargetLang: p.config.TargetLang,
		})
		return err
	})
	if err != nil {
		return "", &TranslationError{Cause: err}
	}
	if result == nil || strings.TrimSpace(result.TranslatedText) == "" {
		return "", &TranslationError{Cause: errors.New("translator returned empty text")}
	}

	translated := strings.TrimSpace(result.TranslatedText)
	if p.config.ValidateScript && p.validator != nil {
		ok, err := p.validator.IsValid(translated, p.config.TargetLang)
		if err != nil {
			return "", &TranslationError{Cause: fmt.Errorf("%w: %v", ErrWrongScript, err)}
		}
		if !ok {
			return "", &TranslationError{Cause: ErrWrongScript}
		}
	}
	return translated, nil
}

// withGate runs fn while holding one inference slot. Waiting for a slot
// honours ctx.
func (p *Pipeline) withGate(ctx context.Context, fn func(context.Context) error) error {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for inference slot: %w", err)
	}
	defer p.gate.Release(1)
	return fn(ctx)
}

// Close releases backend resources such as the Cloud Translation client.
func (p *Pipeline) Close() error {
	if c, ok := p.translator.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
