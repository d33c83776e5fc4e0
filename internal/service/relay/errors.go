package relay

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies relay failures for the transport layer.
type Kind int

const (
	KindInput Kind = iota + 1
	KindConfig
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Service operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether an upstream call ran past its deadline.
func (e *Error) Timeout() bool {
	return e.Kind == KindUpstream && errors.Is(e.Err, context.DeadlineExceeded)
}

// ErrConversationNotFound is reported when terminating an unknown chat id.
var ErrConversationNotFound = errors.New("Conversation not found")

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func upstreamError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindUpstream, op, fmt.Errorf("model call timed out: %w", err))
	}
	return newError(KindUpstream, op, err)
}

// KindOf returns the kind of err, or 0 for foreign errors.
func KindOf(err error) Kind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return 0
}
