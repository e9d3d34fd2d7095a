// Package server exposes the explain-and-translate pipeline over HTTP and
// through AWS Lambda.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/valpere/vyakhya/internal"
	"github.com/valpere/vyakhya/internal/pipeline"
)

// maxBodyBytes bounds a request body; paragraphs are prose, not documents.
const maxBodyBytes = 1 << 20

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req internal.ExplainRequest) (*internal.ExplainResponse, error)
	Ready() bool
}

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one explain_translate call. Zero means none.
	RequestTimeout time.Duration
}

type Server struct {
	runner  Runner
	config  Config
	logger  *slog.Logger
	handler http.Handler
}

// explainBody accepts "text" as an alias for "sentence".
type explainBody struct {
	Paragraph string `json:"paragraph"`
	Sentence  string `json:"sentence"`
	Text      string `json:"text"`
}

func New(runner Runner, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{runner: runner, config: config, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /explain_translate", s.handleExplainTranslate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	s.handler = requestID(s.logRequests(s.recoverPanics(mux)))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleExplainTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body explainBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "request body must be a JSON object with paragraph and sentence")
		return
	}
	if body.Sentence == "" {
		body.Sentence = body.Text
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	resp, err := s.runner.Run(ctx, internal.ExplainRequest{
		ID:        RequestIDFromContext(r.Context()),
		Paragraph: body.Paragraph,
		Sentence:  body.Sentence,
	})
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError && !pipeline.IsGenerationFailure(err) && !pipeline.IsTranslationFailure(err) {
			s.logger.Error("unclassified pipeline error", "request_id", RequestIDFromContext(r.Context()), "error", err)
		}
		writeError(w, r, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, internal.StatusResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.runner.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, internal.StatusResponse{Status: "starting"})
		return
	}
	writeJSON(w, http.StatusOK, internal.StatusResponse{Status: "ready"})
}

// classify maps a pipeline error to a status code and a message that is
// safe to show the caller. Upstream causes never leave the process.
func classify(err error) (int, string) {
	var invalid *pipeline.InvalidRequestError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.Is(err, pipeline.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case pipeline.IsGenerationFailure(err), pipeline.IsTranslationFailure(err):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, internal.ErrorResponse{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}
