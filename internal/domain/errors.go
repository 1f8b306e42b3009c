package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrShortResult is returned when a chunk response carries fewer embeddings than inputs.
	ErrShortResult = errors.New("embedding response shorter than request")

	// ErrDimensionMismatch is returned when vectors in one batch disagree on length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNoAPIKey is returned when a remote provider has no key configured.
	ErrNoAPIKey = errors.New("api key not configured")

	// ErrEmptyInput is returned when there is nothing to embed or parse.
	ErrEmptyInput = errors.New("empty input")
)

// TransportError covers network failures and non-2xx HTTP responses.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("transport: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
		}
		if e.Err != nil {
			return fmt.Sprintf("transport: %s returned status %d: %v", e.URL, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("transport: %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type ArchiveError struct {
	Reason  string
	Members []string
}

func (e *ArchiveError) Error() string {
	if len(e.Members) == 0 {
		return "archive: " + e.Reason
	}
	return fmt.Sprintf("archive: %s (members: %s)", e.Reason, strings.Join(e.Members, ", "))
}

// ParseError reports a row that violates the expected shape. Line is 1-based
// and counts the header.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: line %d: %s", e.Line, e.Reason)
}

// APIError is the application-level error object decoded from an embedding
// service response body.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// EmbeddingServiceError aborts a batch. Chunk is the zero-based ordinal of the
// chunk that failed.
type EmbeddingServiceError struct {
	Chunk    int
	Attempts int
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("embedding chunk %d failed after %d attempts: %v", e.Chunk, e.Attempts, e.Err)
	}
	return fmt.Sprintf("embedding chunk %d failed: %v", e.Chunk, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

type ShapeMismatchError struct {
	Identifiers int
	Embeddings  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %d identifiers, %d embeddings", e.Identifiers, e.Embeddings)
}

// PhaseError tags a failure with the pipeline phase it happened in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func WrapPhase(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// IsRetryable reports whether a failed chunk request may succeed if sent again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrShortResult) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.StatusCode == 0 {
			return true
		}
		return retryableStatus(te.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
