// Package gwerrors defines the gateway's closed error taxonomy.
//
// Every error that crosses a component boundary (adapter, dispatch loop,
// router, streaming pipeline) is a *Error carrying one of the Kind values
// below. The dispatch loop pattern-matches on Kind to decide whether to
// retry against a fallback provider or fail fast, and the HTTP gateway
// maps Kind to a status code.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the gateway can produce.
type Kind string

const (
	Initialization      Kind = "initialization"
	Auth                Kind = "auth"
	Config              Kind = "config"
	Network             Kind = "network"
	InvalidModel        Kind = "invalid_model"
	TokenExchange       Kind = "token_exchange"
	UnexpectedResponse  Kind = "unexpected_response"
	Memory              Kind = "memory"
	InvalidParameter    Kind = "invalid_parameter"
	ProviderUnavailable Kind = "provider_unavailable"
	Streaming           Kind = "streaming"
	InvalidInput        Kind = "invalid_input"
	CommandFailed       Kind = "command_failed"
	IO                  Kind = "io"
)

// Error is the gateway's error type. It always carries a Kind so callers
// can classify failures without string matching.
type Error struct {
	Kind    Kind
	Message string
	// Provider, when non-empty, names the adapter that produced the error.
	Provider string
	// Err wraps an underlying error (HTTP transport failure, JSON decode
	// error, etc.) for %w unwrapping via errors.Unwrap.
	Err error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Provider, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Provider, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind that wraps an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithProvider returns a copy of e with Provider set. Adapters use this to
// stamp their identity onto an error without constructing it by hand.
func (e *Error) WithProvider(provider string) *Error {
	cp := *e
	cp.Provider = provider
	return &cp
}

// Retryable reports whether the dispatch loop should try the next
// fallback provider after this error, per spec §7's retry policy.
// Exactly Network, ProviderUnavailable, and UnexpectedResponse retry;
// everything else (most notably Auth and InvalidParameter, which
// indicate caller misconfiguration rather than provider degradation)
// short-circuits the fallback list.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case Network, ProviderUnavailable, UnexpectedResponse:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code the HTTP gateway returns.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case Auth:
		return 401
	case InvalidParameter, InvalidInput:
		return 400
	case ProviderUnavailable:
		return 503
	default:
		return 500
	}
}

// As reports whether err is (or wraps) a *Error.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
