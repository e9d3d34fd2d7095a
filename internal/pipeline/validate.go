package pipeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/valpere/vyakhya/internal"
)

// normalize trims and NFC-normalizes both fields in place and rejects
// missing or blank ones, paragraph first.
func normalize(req *internal.ExplainRequest) error {
	req.Paragraph = norm.NFC.String(strings.TrimSpace(req.Paragraph))
	req.Sentence = norm.NFC.String(strings.TrimSpace(req.Sentence))

	if req.Paragraph == "" {
		return &InvalidRequestError{Field: "paragraph", Reason: "is required and must be non-empty"}
	}
	if req.Sentence == "" {
		return &InvalidRequestError{Field: "sentence", Reason: "is required and must be non-empty"}
	}
	return nil
}
