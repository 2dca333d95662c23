package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies failures of an upstream call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindTimeout
	KindRateLimit
	KindNotFound
	KindServer
	KindParse
)

var (
	ErrNetwork   = errors.New("network error")
	ErrTimeout   = errors.New("request timed out")
	ErrRateLimit = errors.New("rate limit exceeded")
	ErrNotFound  = errors.New("resource not found")
	ErrServer    = errors.New("upstream server error")
	ErrParse     = errors.New("malformed response")
	ErrUnknown   = errors.New("unknown upstream error")
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindRateLimit:
		return ErrRateLimit
	case KindNotFound:
		return ErrNotFound
	case KindServer:
		return ErrServer
	case KindParse:
		return ErrParse
	default:
		return ErrUnknown
	}
}

// APIError is returned by Client for every failed upstream call.
// errors.Is matches it against the sentinel of its Kind.
type APIError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	URL        string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind.sentinel())
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf reports the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// classifyStatus maps a non-2xx status code to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusNotFound:
		return KindNotFound
	case code >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// classifyTransport maps an error from http.Client.Do or body decoding.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindParse
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	return KindNetwork
}

// NewError builds an APIError for failures detected by callers after a
// successful transport round trip (e.g. an empty station list).
func NewError(kind ErrorKind, provider string, err error) *APIError {
	return &APIError{Kind: kind, Provider: provider, Err: err}
}
