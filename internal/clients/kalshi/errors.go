package kalshi

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies client failures for policy decisions upstream.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindRateLimit  ErrorKind = "rate_limited"
	KindRejected   ErrorKind = "order_rejected"
	KindAPI        ErrorKind = "api"
	KindConnection ErrorKind = "connection"
)

// Error is the classified exchange error. The server message is preserved
// for order rejections; key material never enters it.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration // only for rate-limit errors
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kalshi %s error %d: [%s] %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("kalshi %s error %d: %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kalshi %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a kalshi error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// classify maps an HTTP status to the error taxonomy. isOrderEndpoint
// widens 400 into an order rejection so the caller can record the reason.
func classify(status int, code, message string, isOrderEndpoint bool, retryAfter time.Duration) *Error {
	kind := KindAPI
	switch {
	case status == 401 || status == 403:
		kind = KindAuth
	case status == 429:
		kind = KindRateLimit
	case status == 400 && isOrderEndpoint:
		kind = KindRejected
	}
	return &Error{
		Kind:       kind,
		StatusCode: status,
		Code:       code,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// connectionError wraps a transport failure.
func connectionError(err error) *Error {
	return &Error{Kind: KindConnection, Err: err, Message: err.Error()}
}
