package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode"

	"github.com/valpere/vyakhya/internal"
	"github.com/valpere/vyakhya/internal/explainer"
	"github.com/valpere/vyakhya/internal/llm"
	"github.com/valpere/vyakhya/internal/pipeline"
	"github.com/valpere/vyakhya/internal/translator"
	"github.com/valpere/vyakhya/internal/validator"
)

type mockRunner struct {
	runFunc   func(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error)
	ready     bool
	callCount atomic.Int32
	lastReq   internal.ExplainRequest
}

func (m *mockRunner) Run(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error) {
	m.callCount.Add(1)
	m.lastReq = req
	if m.runFunc != nil {
		return m.runFunc(ctx, req)
	}
	return &internal.ExplainResponse{Explanation: "explanation", Translation: "అనువాదం"}, nil
}

func (m *mockRunner) Ready() bool { return m.ready }

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/explain_translate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) internal.ErrorResponse {
	t.Helper()
	var resp internal.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestHandleExplainTranslate_Success(t *testing.T) {
	runner := &mockRunner{ready: true}
	srv := New(runner, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "The cat sat.", "sentence": "it"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp internal.ExplainResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Explanation != "explanation" || resp.Translation != "అనువాదం" {
		t.Errorf("unexpected response %+v", resp)
	}
	if runner.lastReq.Paragraph != "The cat sat." || runner.lastReq.Sentence != "it" {
		t.Errorf("unexpected request passed to pipeline: %+v", runner.lastReq)
	}
	if runner.lastReq.ID == "" {
		t.Error("expected request id to be passed to pipeline")
	}
}

func TestHandleExplainTranslate_TextAlias(t *testing.T) {
	runner := &mockRunner{ready: true}
	srv := New(runner, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "The cat sat.", "text": "the cat"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if runner.lastReq.Sentence != "the cat" {
		t.Errorf("expected text alias to fill sentence, got %q", runner.lastReq.Sentence)
	}
}

func TestHandleExplainTranslate_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "paragraph=x"},
		{name: "array", body: `["a", "b"]`},
		{name: "wrong type", body: `{"paragraph": 1, "sentence": "it"}`},
		{name: "empty body", body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{ready: true}
			srv := New(runner, Config{}, nil)

			rec := post(t, srv.Handler(), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if decodeError(t, rec).Error == "" {
				t.Error("expected error message")
			}
			if runner.callCount.Load() != 0 {
				t.Error("pipeline must not run for a malformed body")
			}
		})
	}
}

func TestHandleExplainTranslate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid request",
			err:        &pipeline.InvalidRequestError{Field: "paragraph", Reason: "is required and must be non-empty"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "paragraph is required and must be non-empty",
		},
		{
			name:       "generation failure",
			err:        &pipeline.GenerationError{Cause: &llm.UpstreamError{Backend: "ollama", Message: "secret internal detail"}},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "failed to generate explanation",
		},
		{
			name:       "translation failure",
			err:        &pipeline.TranslationError{Cause: errors.New("secret internal detail")},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "failed to translate explanation",
		},
		{
			name:       "warming up",
			err:        pipeline.ErrServiceUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    pipeline.ErrServiceUnavailable.Error(),
		},
		{
			name:       "unclassified",
			err:        errors.New("secret internal detail"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{ready: true, runFunc: func(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error) {
				return nil, tt.err
			}}
			srv := New(runner, Config{}, nil)

			rec := post(t, srv.Handler(), `{"paragraph": "p", "sentence": "s"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.wantMsg {
				t.Errorf("expected error %q, got %q", tt.wantMsg, resp.Error)
			}
			if strings.Contains(rec.Body.String(), "secret") {
				t.Error("internal cause leaked to the caller")
			}
			if resp.RequestID == "" {
				t.Error("expected request_id in error response")
			}
		})
	}
}

func TestHandleExplainTranslate_RequestTimeout(t *testing.T) {
	runner := &mockRunner{ready: true, runFunc: func(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the pipeline context")
		}
		return &internal.ExplainResponse{Explanation: "e", Translation: "t"}, nil
	}}
	srv := New(runner, Config{RequestTimeout: time.Minute}, nil)

	if rec := post(t, srv.Handler(), `{"paragraph": "p", "sentence": "s"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleExplainTranslate_MethodNotAllowed(t *testing.T) {
	srv := New(&mockRunner{ready: true}, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/explain_translate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	// Health does not depend on readiness.
	srv := New(&mockRunner{ready: false}, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{ready: false, wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"starting"}`},
		{ready: true, wantStatus: http.StatusOK, wantBody: `{"status":"ready"}`},
	}

	for _, tt := range tests {
		srv := New(&mockRunner{ready: tt.ready}, Config{}, nil)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != tt.wantStatus {
			t.Errorf("ready=%v: expected %d, got %d", tt.ready, tt.wantStatus, rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != tt.wantBody {
			t.Errorf("ready=%v: unexpected body %q", tt.ready, rec.Body.String())
		}
	}
}

func TestRequestID(t *testing.T) {
	srv := New(&mockRunner{ready: true}, Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected incoming request id to be reused, got %q", got)
	}
}

func TestRecoverPanics(t *testing.T) {
	runner := &mockRunner{ready: true, runFunc: func(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error) {
		panic("boom")
	}}
	srv := New(runner, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "p", "sentence": "s"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if decodeError(t, rec).Error != "internal server error" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

// newCatPipeline wires real explainer, translator and pipeline packages to
// fake model backends.
func newCatPipeline(t *testing.T, client *llm.MockClient) (*pipeline.Pipeline, *atomic.Int32) {
	t.Helper()

	var nllbCalls atomic.Int32
	nllb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			return
		}
		nllbCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{
			{"translation_text": "పిల్లి అలసిపోయినందున చాప మీద కూర్చుంది."},
		})
	}))
	t.Cleanup(nllb.Close)

	gen := explainer.New(client, explainer.Config{Mode: explainer.ModeGreedy, Seed: 42, StripMarkdown: true})
	tr := translator.NewNLLBService(translator.NLLBConfig{BaseURL: nllb.URL, Model: "nllb", MaxChars: 400})
	p := pipeline.New(gen, tr, validator.New(nil), pipeline.Config{SourceLang: "en", TargetLang: "te", MaxConcurrent: 1, ValidateScript: true}, nil)
	if err := p.Warmup(context.Background()); err != nil {
		t.Fatalf("warm-up: %v", err)
	}
	return p, &nllbCalls
}

func TestExplainTranslate_EndToEnd(t *testing.T) {
	client := llm.NewMockClient("Contextual Explanation: The cat sat on the mat because it was **tired**.")
	p, _ := newCatPipeline(t, client)
	srv := New(p, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "The cat sat on the mat because it was tired.", "sentence": "it was tired"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp internal.ExplainResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Explanation != "The cat sat on the mat because it was tired." {
		t.Errorf("unexpected explanation %q", resp.Explanation)
	}
	if validator.ScriptRatio(resp.Translation, unicode.Telugu) < 0.5 {
		t.Errorf("expected Telugu translation, got %q", resp.Translation)
	}

	reqs := client.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(reqs))
	}
	if reqs[0].Options.Temperature != 0 || reqs[0].Options.Seed == nil || *reqs[0].Options.Seed != 42 {
		t.Errorf("expected greedy options with seed 42, got %+v", reqs[0].Options)
	}
}

func TestExplainTranslate_EndToEnd_EmptyParagraph(t *testing.T) {
	client := llm.NewMockClient("unused")
	p, nllbCalls := newCatPipeline(t, client)
	srv := New(p, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "", "sentence": "it"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decodeError(t, rec).Error == "" {
		t.Error("expected error field")
	}
	if client.CallCount() != 0 || nllbCalls.Load() != 0 {
		t.Error("expected no model invocation")
	}
}

func TestExplainTranslate_EndToEnd_EmptyExplanation(t *testing.T) {
	client := llm.NewMockClient("<think>the user wants</think>")
	p, nllbCalls := newCatPipeline(t, client)
	srv := New(p, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "The cat sat.", "sentence": "it"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if decodeError(t, rec).Error != "failed to generate explanation" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if nllbCalls.Load() != 0 {
		t.Error("translator must not run after an empty explanation")
	}
}

func TestExplainTranslate_InvalidRequestWhileWarmingUp(t *testing.T) {
	client := llm.NewMockClient("unused")
	tr := translator.NewLLMTranslator(client)
	p := pipeline.New(explainer.New(client, explainer.Config{}), tr, nil, pipeline.Config{TargetLang: "te"}, nil)
	srv := New(p, Config{}, nil)

	rec := post(t, srv.Handler(), `{"paragraph": "", "sentence": "it"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before warm-up, got %d", rec.Code)
	}

	rec = post(t, srv.Handler(), `{"paragraph": "The cat sat.", "sentence": "it"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a valid request before warm-up, got %d", rec.Code)
	}
	if client.CallCount() != 0 {
		t.Error("expected no model invocation before warm-up")
	}
}
