package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/vyakhya/internal"
	"github.com/valpere/vyakhya/internal/explainer"
	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/translator"
	"github.com/valpere/vyakhya/internal/validator"
)

type mockExplainer struct {
	explainFunc   func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error)
	availableFunc func(ctx context.Context) error
	callCount     atomic.Int32
}

func (m *mockExplainer) Name() string { return "mock-explainer" }

func (m *mockExplainer) Explain(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
	m.callCount.Add(1)
	if m.explainFunc != nil {
		return m.explainFunc(ctx, paragraph, sentence)
	}
	return &explainer.Result{Text: "The cat sat down because it was exhausted."}, nil
}

func (m *mockExplainer) IsAvailable(ctx context.Context) error {
	if m.availableFunc != nil {
		return m.availableFunc(ctx)
	}
	return nil
}

type mockTranslator struct {
	translateFunc func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error)
	availableFunc func(ctx context.Context) error
	callCount     atomic.Int32
	closed        atomic.Bool
}

func (m *mockTranslator) Name() string { return "mock-translator" }

func (m *mockTranslator) Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	m.callCount.Add(1)
	if m.translateFunc != nil {
		return m.translateFunc(ctx, req)
	}
	return &translator.ServiceResult{ServiceName: "mock-translator", TranslatedText: "పిల్లి అలసిపోయినందున కూర్చుంది."}, nil
}

func (m *mockTranslator) IsAvailable(ctx context.Context) error {
	if m.availableFunc != nil {
		return m.availableFunc(ctx)
	}
	return nil
}

func (m *mockTranslator) Close() error {
	m.closed.Store(true)
	return nil
}

func newReadyPipeline(exp Explainer, tr translator.TranslationService, config Config) *Pipeline {
	p := New(exp, tr, validator.New(nil), config, nil)
	p.MarkReady()
	return p
}

var catRequest = internal.ExplainRequest{
	ID:        "req-1",
	Paragraph: "The cat sat on the mat because it was tired.",
	Sentence:  "it was tired",
}

func TestPipeline_Run_Success(t *testing.T) {
	exp := &mockExplainer{}
	tr := &mockTranslator{}
	p := newReadyPipeline(exp, tr, Config{TargetLang: "te", ValidateScript: true})

	resp, err := p.Run(context.Background(), catRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Explanation != "The cat sat down because it was exhausted." {
		t.Errorf("unexpected explanation %q", resp.Explanation)
	}
	if resp.Translation != "పిల్లి అలసిపోయినందున కూర్చుంది." {
		t.Errorf("unexpected translation %q", resp.Translation)
	}
	if exp.callCount.Load() != 1 || tr.callCount.Load() != 1 {
		t.Errorf("expected one call each, got explainer=%d translator=%d", exp.callCount.Load(), tr.callCount.Load())
	}
}

func TestPipeline_Run_TranslatesExplanation(t *testing.T) {
	var got translator.TranslateRequest
	tr := &mockTranslator{translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
		got = req
		return &translator.ServiceResult{TranslatedText: "తెలుగు"}, nil
	}}
	p := newReadyPipeline(&mockExplainer{}, tr, Config{SourceLang: "en", TargetLang: "te"})

	if _, err := p.Run(context.Background(), catRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "The cat sat down because it was exhausted." {
		t.Errorf("translator received %q, want the explanation", got.Text)
	}
	if got.SourceLang != "en" || got.TargetLang != "te" {
		t.Errorf("unexpected languages %+v", got)
	}
}

func TestPipeline_Run_InvalidRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       internal.ExplainRequest
		wantField string
	}{
		{name: "empty paragraph", req: internal.ExplainRequest{Paragraph: "", Sentence: "it"}, wantField: "paragraph"},
		{name: "blank paragraph", req: internal.ExplainRequest{Paragraph: "  \n\t", Sentence: "it"}, wantField: "paragraph"},
		{name: "empty sentence", req: internal.ExplainRequest{Paragraph: "The cat.", Sentence: ""}, wantField: "sentence"},
		{name: "both empty", req: internal.ExplainRequest{}, wantField: "paragraph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &mockExplainer{}
			tr := &mockTranslator{}
			p := newReadyPipeline(exp, tr, Config{})

			resp, err := p.Run(context.Background(), tt.req)
			if resp != nil {
				t.Errorf("expected nil response, got %+v", resp)
			}
			var invalid *InvalidRequestError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidRequestError, got %v", err)
			}
			if invalid.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, invalid.Field)
			}
			if exp.callCount.Load() != 0 || tr.callCount.Load() != 0 {
				t.Error("expected no backend calls for an invalid request")
			}
		})
	}
}

func TestPipeline_Run_NormalizesInput(t *testing.T) {
	var gotParagraph, gotSentence string
	exp := &mockExplainer{explainFunc: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
		gotParagraph, gotSentence = paragraph, sentence
		return &explainer.Result{Text: "ok"}, nil
	}}
	p := newReadyPipeline(exp, &mockTranslator{}, Config{})

	// "e" followed by a combining acute accent composes to U+00E9 under NFC.
	_, err := p.Run(context.Background(), internal.ExplainRequest{Paragraph: "  Cafe\u0301 is open.  ", Sentence: "\tit\n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotParagraph != "Caf\u00e9 is open." {
		t.Errorf("unexpected paragraph %q", gotParagraph)
	}
	if gotSentence != "it" {
		t.Errorf("unexpected sentence %q", gotSentence)
	}
}

func TestPipeline_Run_GenerationFailure(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error)
	}{
		{name: "backend error", fn: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
			return &explainer.Result{Error: "connection refused"}, errors.New("connection refused")
		}},
		{name: "empty text", fn: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
			return &explainer.Result{}, nil
		}},
		{name: "whitespace text", fn: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
			return &explainer.Result{Text: "  \n "}, nil
		}},
		{name: "nil result", fn: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
			return nil, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTranslator{}
			p := newReadyPipeline(&mockExplainer{explainFunc: tt.fn}, tr, Config{})

			resp, err := p.Run(context.Background(), catRequest)
			if resp != nil {
				t.Errorf("expected nil response, got %+v", resp)
			}
			if !IsGenerationFailure(err) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if err.Error() != "failed to generate explanation" {
				t.Errorf("unexpected message %q", err.Error())
			}
			if tr.callCount.Load() != 0 {
				t.Error("translator must not be invoked when explanation fails")
			}
		})
	}
}

func TestPipeline_Run_GenerationFailure_KeepsCause(t *testing.T) {
	upstream := &llm.UpstreamError{Backend: "ollama", StatusCode: 500, Message: "model crashed"}
	exp := &mockExplainer{explainFunc: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
		return &explainer.Result{}, upstream
	}}
	p := newReadyPipeline(exp, &mockTranslator{}, Config{})

	_, err := p.Run(context.Background(), catRequest)
	if !llm.IsUpstream(err) {
		t.Errorf("expected upstream cause to be reachable, got %v", err)
	}
}

func TestPipeline_Run_TranslationFailure(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error)
		wantCause error
	}{
		{name: "backend error", fn: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{Error: "timeout"}, errors.New("timeout")
		}},
		{name: "empty text", fn: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{}, nil
		}},
		{name: "latin script", wantCause: ErrWrongScript, fn: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{TranslatedText: "The cat was tired and sat down."}, nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newReadyPipeline(&mockExplainer{}, &mockTranslator{translateFunc: tt.fn}, Config{TargetLang: "te", ValidateScript: true})

			resp, err := p.Run(context.Background(), catRequest)
			if resp != nil {
				t.Errorf("expected nil response, got %+v", resp)
			}
			if !IsTranslationFailure(err) {
				t.Fatalf("expected TranslationError, got %v", err)
			}
			if err.Error() != "failed to translate explanation" {
				t.Errorf("unexpected message %q", err.Error())
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("expected cause %v, got %v", tt.wantCause, errors.Unwrap(err))
			}
		})
	}
}

func TestPipeline_Run_ScriptValidationDisabled(t *testing.T) {
	tr := &mockTranslator{translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
		return &translator.ServiceResult{TranslatedText: "pilli alasipoyindi"}, nil
	}}
	p := newReadyPipeline(&mockExplainer{}, tr, Config{TargetLang: "te", ValidateScript: false})

	resp, err := p.Run(context.Background(), catRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Translation != "pilli alasipoyindi" {
		t.Errorf("unexpected translation %q", resp.Translation)
	}
}

func TestPipeline_Run_NotReady(t *testing.T) {
	exp := &mockExplainer{}
	p := New(exp, &mockTranslator{}, nil, Config{}, nil)

	_, err := p.Run(context.Background(), catRequest)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if exp.callCount.Load() != 0 {
		t.Error("expected no explainer calls before warm-up")
	}
}

func TestPipeline_Run_InvalidRequestBeforeReady(t *testing.T) {
	exp := &mockExplainer{}
	p := New(exp, &mockTranslator{}, nil, Config{}, nil)

	_, err := p.Run(context.Background(), internal.ExplainRequest{Paragraph: "", Sentence: "it"})
	if !IsInvalidRequest(err) {
		t.Fatalf("expected InvalidRequestError while warming up, got %v", err)
	}
	if errors.Is(err, ErrServiceUnavailable) {
		t.Error("validation must run before the readiness check")
	}
	if exp.callCount.Load() != 0 {
		t.Error("expected no explainer calls")
	}
}

func TestPipeline_Warmup(t *testing.T) {
	tests := []struct {
		name         string
		explainerErr error
		translateErr error
		wantReady    bool
	}{
		{name: "both available", wantReady: true},
		{name: "explainer down", explainerErr: errors.New("model not found")},
		{name: "translator down", translateErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &mockExplainer{availableFunc: func(ctx context.Context) error { return tt.explainerErr }}
			tr := &mockTranslator{availableFunc: func(ctx context.Context) error { return tt.translateErr }}
			p := New(exp, tr, nil, Config{}, nil)

			err := p.Warmup(context.Background())
			if (err == nil) != tt.wantReady {
				t.Errorf("Warmup() error = %v, wantReady %v", err, tt.wantReady)
			}
			if p.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", p.Ready(), tt.wantReady)
			}
		})
	}
}

func TestPipeline_Gate_SerializesInference(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	track := func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	}

	exp := &mockExplainer{explainFunc: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
		track()
		return &explainer.Result{Text: "explanation"}, nil
	}}
	tr := &mockTranslator{translateFunc: func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
		track()
		return &translator.ServiceResult{TranslatedText: "అనువాదం"}, nil
	}}
	p := newReadyPipeline(exp, tr, Config{MaxConcurrent: 1})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(context.Background(), catRequest); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Errorf("expected at most 1 concurrent inference call, got %d", maxInFlight.Load())
	}
}

func TestPipeline_Gate_HonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	exp := &mockExplainer{explainFunc: func(ctx context.Context, paragraph, sentence string) (*explainer.Result, error) {
		close(started)
		<-release
		return &explainer.Result{Text: "explanation"}, nil
	}}
	p := newReadyPipeline(exp, &mockTranslator{}, Config{MaxConcurrent: 1})

	go p.Run(context.Background(), catRequest)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Only the blocked request may touch explainFunc; this one must give up
	// waiting for the slot.
	second := &Pipeline{explainer: &mockExplainer{}, translator: &mockTranslator{}, config: p.config, gate: p.gate, logger: p.logger}
	second.MarkReady()

	_, err := second.Run(ctx, catRequest)
	close(release)

	if !IsGenerationFailure(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected generation failure caused by deadline, got %v", err)
	}
}

func TestPipeline_Close(t *testing.T) {
	tr := &mockTranslator{}
	p := New(&mockExplainer{}, tr, nil, Config{}, nil)

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.closed.Load() {
		t.Error("expected translator to be closed")
	}
}
