package qbo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// ErrNotAuthorized means no usable token set is stored and the operator
// has to run the authorization-code flow again.
var ErrNotAuthorized = errors.New("not authorized yet")

// ErrInvalidCallback is returned when the authorization callback lacks the
// code or realm id.
var ErrInvalidCallback = errors.New("authorization callback is missing code or realmId")

// UpstreamAuthError is a non-2xx answer from the token endpoint.
type UpstreamAuthError struct {
	Op         string // "exchange" or "refresh"
	StatusCode int
	Body       []byte
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("token %s failed with status %d: %s", e.Op, e.StatusCode, trimBody(e.Body))
}

// Detail is the provider body as JSON when it parses, else as text.
func (e *UpstreamAuthError) Detail() any { return detail(e.Body) }

// UpstreamError is a non-2xx or unparseable answer from the accounting API.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream status %d: %v: %s", e.StatusCode, e.Err, trimBody(e.Body))
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, trimBody(e.Body))
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Detail is the provider body as JSON when it parses, else as text.
func (e *UpstreamError) Detail() any { return detail(e.Body) }

// UpstreamTimeoutError reports a provider call that ran past its deadline.
type UpstreamTimeoutError struct {
	Op  string
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error { return e.Err }

// WrapTransportError classifies a failed round trip: deadline overruns
// become *UpstreamTimeoutError, anything else is wrapped with op.
func WrapTransportError(op string, err error) error {
	if isTimeout(err) {
		return &UpstreamTimeoutError{Op: op, Err: err}
	}
	return fmt.Errorf("%s request failed: %w", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func detail(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err == nil {
		return v
	}
	return string(body)
}

func trimBody(body []byte) string {
	const max = 512
	b := bytes.TrimSpace(body)
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
