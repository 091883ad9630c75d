package provider

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindTimeout Kind = iota + 1
	KindUnauthorized
	KindRateLimited
	KindMalformed
	KindUnavailable
	KindSymbolUnsupported
)

// kind sentinels, matched through errors.Is on *Error
var (
	ErrTimeout           = errors.New("provider timeout")
	ErrUnauthorized      = errors.New("provider unauthorized")
	ErrRateLimited       = errors.New("provider rate limited")
	ErrMalformed         = errors.New("provider malformed response")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrSymbolUnsupported = errors.New("symbol not supported by provider")
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	case KindUnavailable:
		return "unavailable"
	case KindSymbolUnsupported:
		return "symbol_unsupported"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformed:
		return ErrMalformed
	case KindUnavailable:
		return ErrUnavailable
	case KindSymbolUnsupported:
		return ErrSymbolUnsupported
	default:
		return nil
	}
}

// Error is the typed failure of a single provider call.
type Error struct {
	Provider string
	Kind     Kind
	Err      error
}

func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

func Errorf(provider string, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the Kind of err; unknown errors classify as Unavailable.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnavailable
}

type Failure struct {
	Provider string
	Err      error
}

// ExhaustedError is returned when every client in the chain failed.
// Failures keep the order in which the clients were tried.
type ExhaustedError struct {
	Symbol   string
	Failures []Failure
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers failed for %s", e.Symbol)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Provider, f.Err)
	}
	return b.String()
}

// Unwrap exposes every failure so errors.Is matches any of them.
func (e *ExhaustedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}
