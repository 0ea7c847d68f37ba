// Package resilience provides retry, backoff, and error-classification
// primitives shared by the pipeline stages.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind buckets a per-item failure for retry decisions and run statistics.
type Kind string

const (
	KindRateLimit  Kind = "Rate Limit"
	KindAuth       Kind = "Auth Error"
	KindTimeout    Kind = "Timeout"
	KindConnection Kind = "Connection Error"
	KindParse      Kind = "Parse Error"
	KindServer     Kind = "Server Error"
	KindUnknown    Kind = "Other Error"
)

// Retryable reports whether failures of this kind are worth retrying.
// Auth failures and persistently malformed responses are terminal:
// retrying cannot fix either.
func (k Kind) Retryable() bool {
	switch k {
	case KindAuth, KindParse:
		return false
	default:
		return true
	}
}

// StageError is a classified per-item failure. Workers always return a
// StageError rather than raising past the dispatcher boundary.
type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with an explicit classification.
func NewStageError(kind Kind, err error) *StageError {
	return &StageError{Kind: kind, Err: err}
}

// Classify assigns an error to a Kind. An error already carrying a
// StageError in its chain keeps its classification; everything else is
// matched against network error types and known rate-limit / auth
// phrasings before falling back to KindUnknown.
func Classify(err error) *StageError {
	if err == nil {
		return nil
	}

	var se *StageError
	if errors.As(err, &se) {
		return se
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &StageError{Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &StageError{Kind: KindTimeout, Err: err}
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return &StageError{Kind: KindConnection, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return &StageError{Kind: KindRateLimit, Err: err}
	case containsAny(msg, "unauthorized", "invalid api key", "authentication", "forbidden", "401", "403"):
		return &StageError{Kind: KindAuth, Err: err}
	case containsAny(msg, "i/o timeout", "deadline exceeded", "tls handshake timeout"):
		return &StageError{Kind: KindTimeout, Err: err}
	case containsAny(msg, "connection reset by peer", "connection refused", "broken pipe",
		"no such host", "temporary failure in name resolution", "server closed idle connection"):
		return &StageError{Kind: KindConnection, Err: err}
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"):
		return &StageError{Kind: KindServer, Err: err}
	default:
		return &StageError{Kind: KindUnknown, Err: err}
	}
}

// ClassifyHTTPStatus maps an HTTP status code to a Kind, or KindUnknown
// for codes with no specific bucket.
func ClassifyHTTPStatus(code int) Kind {
	switch {
	case code == 429:
		return KindRateLimit
	case code == 401 || code == 403:
		return KindAuth
	case code == 408 || code == 504:
		return KindTimeout
	case code >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
