package internal

// ExplainRequest is one (paragraph, sentence) pair submitted for explanation.
// ID correlates log lines; it is the request's X-Request-ID.
type ExplainRequest struct {
	ID        string
	Paragraph string
	Sentence  string
}

// ExplainResponse is returned only when both steps produced text.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
	Translation string `json:"translation"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
