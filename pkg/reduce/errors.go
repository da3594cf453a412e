package reduce

import (
	"errors"
	"fmt"
)

// Kind classifies a failed reduction.
type Kind string

const (
	// KindValidation covers missing, ragged, empty or non-numeric input and out of range n_components.
	KindValidation Kind = "validation"
	// KindComputation covers decomposition failures and non-finite results.
	KindComputation Kind = "computation"
	// KindTransport covers bodies that cannot be read or parsed as JSON.
	KindTransport Kind = "transport"
	// KindCanceled is used when the caller went away before a decomposition slot was free.
	KindCanceled Kind = "canceled"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrComputation = errors.New("computation error")
	ErrTransport   = errors.New("transport error")
	ErrCanceled    = errors.New("canceled")
)

// Error is the structured failure of a reduction. Message is safe to return to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind) + " error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrComputation:
		return e.Kind == KindComputation
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

func validationErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindComputation for errors that did not come from this package.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindComputation
}
