// Package apperrors defines the error kinds shared by every component of the
// pipeline. Components wrap infrastructure failures into a kind at their
// boundary; only the HTTP layer turns kinds into transport responses.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindInternal         Kind = "internal"
	KindInvalidRequest   Kind = "invalid_request"
	KindInvalidConfig    Kind = "invalid_config"
	KindIndexUnavailable Kind = "index_unavailable"
	KindRetrievalFailed  Kind = "retrieval_failed"
	KindGenerationFailed Kind = "generation_failed"
	KindStoreUnavailable Kind = "store_unavailable"
	KindNotFound         Kind = "not_found"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrInvalidConfig    = &Error{Kind: KindInvalidConfig}
	ErrIndexUnavailable = &Error{Kind: KindIndexUnavailable}
	ErrRetrievalFailed  = &Error{Kind: KindRetrievalFailed}
	ErrGenerationFailed = &Error{Kind: KindGenerationFailed}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is a failure tagged with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNotFound)
// works regardless of Op or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
