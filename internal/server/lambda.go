package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasdk "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

const (
	// WarmupSource marks scheduled CloudWatch events that only keep
	// instances warm.
	WarmupSource = "warmup"

	// warmupDelay keeps this instance busy long enough for the
	// self-invocations to land on other instances.
	warmupDelay = 75 * time.Millisecond
)

type WarmupEvent struct {
	Source      string `json:"source"`
	Concurrency int    `json:"concurrency"`
}

type WarmupResponse struct {
	Status          string `json:"status"`
	InstancesWarmed int    `json:"instancesWarmed"`
}

// Warmer is satisfied by *pipeline.Pipeline.
type Warmer interface {
	Ready() bool
	Warmup(ctx context.Context) error
}

// Invoker is the part of the Lambda API client used for self-invocation.
type Invoker interface {
	Invoke(ctx context.Context, params *lambdasdk.InvokeInput, optFns ...func(*lambdasdk.Options)) (*lambdasdk.InvokeOutput, error)
}

// LambdaHandler routes raw Lambda events: warm-up pings go to the backends,
// everything else is treated as an API Gateway HTTP API (v2) request.
type LambdaHandler struct {
	server       *Server
	warmer       Warmer
	invoker      Invoker
	functionName string
}

// NewLambdaHandler creates a handler. invoker may be nil, in which case
// warm-up events never fan out.
func NewLambdaHandler(s *Server, warmer Warmer, invoker Invoker, functionName string) *LambdaHandler {
	return &LambdaHandler{server: s, warmer: warmer, invoker: invoker, functionName: functionName}
}

func (h *LambdaHandler) Handle(ctx context.Context, event json.RawMessage) (any, error) {
	if !h.warmer.Ready() {
		// A cold instance loads its models on the first event of any kind.
		if err := h.warmer.Warmup(ctx); err != nil {
			h.server.logger.Warn("warm-up failed", "error", err)
		}
	}

	if warmup, ok := IsWarmupEvent(event); ok {
		return h.handleWarmup(ctx, warmup), nil
	}

	var req events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, fmt.Errorf("failed to decode API Gateway event: %w", err)
	}
	return h.server.HandleAPIGateway(ctx, req)
}

// IsWarmupEvent reports whether event is a {"source": "warmup"} ping.
func IsWarmupEvent(event json.RawMessage) (*WarmupEvent, bool) {
	var warmup WarmupEvent
	if err := json.Unmarshal(event, &warmup); err != nil {
		return nil, false
	}
	if warmup.Source != WarmupSource {
		return nil, false
	}
	if warmup.Concurrency < 0 {
		warmup.Concurrency = 0
	}
	return &warmup, true
}

func (h *LambdaHandler) handleWarmup(ctx context.Context, warmup *WarmupEvent) *WarmupResponse {
	warmed := 1
	if warmup.Concurrency > 0 && h.invoker != nil {
		if err := h.selfInvoke(ctx, warmup.Concurrency); err != nil {
			h.server.logger.Warn("self-invocation failed", "error", err)
		} else {
			warmed += warmup.Concurrency
		}
	}

	time.Sleep(warmupDelay)

	status := "warm"
	if !h.warmer.Ready() {
		status = "starting"
	}
	return &WarmupResponse{Status: status, InstancesWarmed: warmed}
}

// selfInvoke fires count asynchronous warm-up events at this function.
// Children get concurrency 0 so they do not fan out again.
func (h *LambdaHandler) selfInvoke(ctx context.Context, count int) error {
	payload, err := json.Marshal(WarmupEvent{Source: WarmupSource})
	if err != nil {
		return err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.invoker.Invoke(ctx, &lambdasdk.InvokeInput{
				FunctionName:   aws.String(h.functionName),
				InvocationType: types.InvocationTypeEvent,
				Payload:        payload,
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// HandleAPIGateway serves one API Gateway HTTP API event through the same
// handler chain as the HTTP server.
func (s *Server) HandleAPIGateway(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("failed to decode base64 body: %w", err)
		}
		body = decoded
	}

	path := event.RawPath
	if path == "" {
		path = "/"
	}
	if event.RawQueryString != "" {
		path += "?" + event.RawQueryString
	}

	req, err := http.NewRequestWithContext(ctx, event.RequestContext.HTTP.Method, path, bytes.NewReader(body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	if event.RequestContext.RequestID != "" && req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, event.RequestContext.RequestID)
	}
	req.RemoteAddr = event.RequestContext.HTTP.SourceIP

	rw := newBufferedResponse()
	s.handler.ServeHTTP(rw, req)

	headers := make(map[string]string, len(rw.header))
	for k, v := range rw.header {
		headers[k] = strings.Join(v, ",")
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: rw.status,
		Headers:    headers,
		Body:       rw.body.String(),
	}, nil
}

// bufferedResponse collects a handler's output for the Lambda runtime.
type bufferedResponse struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}
