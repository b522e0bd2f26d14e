// Package tradeerr defines the error kinds surfaced by broker adapters and the
// sizing/rebalance engines. Callers branch with errors.Is on the sentinels:
//
//	if errors.Is(err, tradeerr.ErrAuth) { ... re-login ... }
package tradeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds.
var (
	ErrValidation         = errors.New("validation error")
	ErrAuth               = errors.New("auth error")
	ErrNetwork            = errors.New("network error")
	ErrRateLimit          = errors.New("rate limit error")
	ErrRejected           = errors.New("broker rejection")
	ErrInsufficientAmount = errors.New("insufficient amount")
)

// Error carries the kind plus enough context to log or show to a user.
type Error struct {
	Kind    error  // one of the sentinels above
	Broker  string // empty for engine errors
	Op      string // e.g. "placeOrder"
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Broker != "" {
		b.WriteString(e.Broker)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New builds an Error of the given kind.
func New(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around cause.
func Wrap(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Validation is shorthand for New(ErrValidation, ...).
func Validation(op, format string, args ...any) *Error {
	return New(ErrValidation, op, format, args...)
}

// WithBroker tags err with the broker name if it is an *Error; other errors are
// returned unchanged.
func WithBroker(err error, broker string) error {
	var te *Error
	if errors.As(err, &te) && te.Broker == "" {
		te.Broker = broker
	}
	return err
}

// KindOf returns the sentinel kind of err, or nil if err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrAuth, ErrNetwork, ErrRateLimit, ErrRejected, ErrInsufficientAmount} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether the failure is transient (network or rate limit).
// The core never retries; this is for callers deciding what to surface.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimit)
}
