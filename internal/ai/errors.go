package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var ErrClientUnavailable = errors.New("ai client unavailable")

type ErrorKind string

const (
	// ErrorKindTimeout and ErrorKindConnection are transient transport
	// failures.
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConnection ErrorKind = "connection"
	// ErrorKindProtocol is a well-formed non-success response.
	ErrorKindProtocol   ErrorKind = "protocol"
	ErrorKindUnexpected ErrorKind = "unexpected"
)

const maxErrorBody = 700

// CallError describes one failed call to an external AI service.
type CallError struct {
	API        string
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *CallError) Error() string {
	switch e.Kind {
	case ErrorKindProtocol:
		return fmt.Sprintf("%s status %d: %s", e.API, e.StatusCode, e.Body)
	default:
		if e.Err == nil {
			return fmt.Sprintf("%s %s error", e.API, e.Kind)
		}
		return fmt.Sprintf("%s %s error: %v", e.API, e.Kind, e.Err)
	}
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Client errors
// other than request timeout and rate limiting are final.
func (e *CallError) Retryable() bool {
	if e.Kind != ErrorKindProtocol {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

func isRetryable(err error) bool {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Retryable()
	}
	return err != nil
}

func protocolError(api string, status int, body []byte) *CallError {
	message := strings.TrimSpace(string(body))
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody]
	}
	return &CallError{API: api, Kind: ErrorKindProtocol, StatusCode: status, Body: message}
}

// transportError classifies a failure that happened before a response was
// read. attemptCtx is the per-attempt deadline context.
func transportError(api string, attemptCtx context.Context, err error) *CallError {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &CallError{API: api, Kind: ErrorKindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &CallError{API: api, Kind: ErrorKindTimeout, Err: err}
	}
	if errors.As(err, &netErr) {
		return &CallError{API: api, Kind: ErrorKindConnection, Err: err}
	}
	return &CallError{API: api, Kind: ErrorKindUnexpected, Err: err}
}

// ClassifyError maps err to a short label used in failure logs.
func ClassifyError(err error) string {
	var callErr *CallError
	if errors.As(err, &callErr) {
		switch {
		case callErr.Kind == ErrorKindTimeout:
			return "timeout"
		case callErr.Kind == ErrorKindConnection:
			return "connection"
		case callErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case callErr.Kind == ErrorKindProtocol:
			return "protocol"
		}
		return "unexpected"
	}
	message := strings.ToLower(fmt.Sprint(err))
	switch {
	case strings.Contains(message, "timeout"):
		return "timeout"
	case strings.Contains(message, "connection"):
		return "connection"
	case strings.Contains(message, "rate limit"):
		return "rate_limit"
	case strings.Contains(message, "json"):
		return "json"
	}
	return "unknown"
}
