package pipeline

import (
	"errors"
	"fmt"
)

// ErrServiceUnavailable is returned while backends are still warming up.
var ErrServiceUnavailable = errors.New("service is starting, try again shortly")

// ErrWrongScript marks a translation that is not written in the target
// language's script.
var ErrWrongScript = errors.New("translation is not in the target script")

// InvalidRequestError names the request field that failed validation.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// GenerationError wraps the cause of a failed or empty explanation. Its
// message is safe to return to callers; Cause is for logs only.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return "failed to generate explanation"
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// TranslationError wraps the cause of a failed, empty or wrong-script
// translation.
type TranslationError struct {
	Cause error
}

func (e *TranslationError) Error() string {
	return "failed to translate explanation"
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

func IsInvalidRequest(err error) bool {
	var e *InvalidRequestError
	return errors.As(err, &e)
}

func IsGenerationFailure(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}

func IsTranslationFailure(err error) bool {
	var e *TranslationError
	return errors.As(err, &e)
}
