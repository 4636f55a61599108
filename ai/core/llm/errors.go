package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/supportdesk/ai/observability"
)

// ErrorClass categorizes a backend failure for fallback decisions.
type ErrorClass int

const (
	ClassTimeout ErrorClass = iota
	ClassRateLimited
	ClassTransport
	ClassServer
	ClassEmpty
	ClassInvalidRequest
	ClassAuth
	ClassCanceled
)

// String returns the outcome label used in events and metrics.
func (c ErrorClass) String() string {
	switch c {
	case ClassTimeout:
		return observability.OutcomeTimeout
	case ClassRateLimited:
		return observability.OutcomeRateLimited
	case ClassTransport:
		return observability.OutcomeTransport
	case ClassServer:
		return observability.OutcomeServer
	case ClassEmpty:
		return observability.OutcomeEmpty
	case ClassInvalidRequest:
		return observability.OutcomeInvalidRequest
	case ClassAuth:
		return observability.OutcomeAuth
	case ClassCanceled:
		return observability.OutcomeCanceled
	default:
		return "unknown"
	}
}

// Retriable reports whether the next backend should be tried.
func (c ErrorClass) Retriable() bool {
	switch c {
	case ClassTimeout, ClassRateLimited, ClassTransport, ClassServer, ClassEmpty:
		return true
	default:
		return false
	}
}

var (
	// ErrRateLimited is returned by a backend whose local quota is exhausted.
	ErrRateLimited = errors.New("backend rate limit exceeded")
	// ErrEmptyCompletion is returned when a backend answers with no content.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrNoBackends is returned by a gateway with no configured backends.
	ErrNoBackends = errors.New("no inference backends configured")
)

// BackendError ties a failure to the backend that produced it.
type BackendError struct {
	Err     error
	Backend string
	Class   ErrorClass
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Class, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// InferenceError is the only error the gateway returns.
type InferenceError struct {
	// Attempts holds one entry per backend tried, in order.
	Attempts []*BackendError
	// Retriable is false when a backend rejected the request itself.
	Retriable bool
	// Exhausted is true when every backend failed with a retriable error.
	Exhausted bool
}

func (e *InferenceError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}
	switch {
	case e.Exhausted:
		return "inference exhausted: " + strings.Join(parts, "; ")
	case !e.Retriable:
		return "inference rejected: " + strings.Join(parts, "; ")
	default:
		return "inference failed: " + strings.Join(parts, "; ")
	}
}

func (e *InferenceError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// IsExhausted reports whether err is an InferenceError with every backend failed.
func IsExhausted(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie) && ie.Exhausted
}

// ClassifyError maps a raw backend error to its class.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassServer
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrEmptyCompletion):
		return ClassEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, context.Canceled):
		return ClassCanceled
	}

	if status, ok := httpStatus(err); ok {
		return classifyStatus(status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransport
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "deadline exceeded"} {
		if strings.Contains(msg, pattern) {
			return ClassTimeout
		}
	}
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"dial tcp",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return ClassTransport
		}
	}
	return ClassServer
}

func httpStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ClassTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status >= 500:
		return ClassServer
	case status >= 400:
		return ClassInvalidRequest
	default:
		return ClassServer
	}
}
