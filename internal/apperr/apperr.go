package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindInputRejected covers malformed documents, unsupported formats and
	// oversize payloads. The caller must fix the input before retrying.
	KindInputRejected
	// KindGrounding means no chunk cleared the certainty floor.
	KindGrounding
	// KindProvider is an embedding or generation call that failed or timed out.
	KindProvider
	// KindIndex is a vector index that could not be reached or rejected an operation.
	KindIndex
)

func (k Kind) String() string {
	switch k {
	case KindInputRejected:
		return "input rejected"
	case KindGrounding:
		return "grounding failure"
	case KindProvider:
		return "provider failure"
	case KindIndex:
		return "index failure"
	default:
		return "unknown"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func InputRejected(op, format string, args ...any) *Error {
	return New(KindInputRejected, op, fmt.Errorf(format, args...))
}

// ErrNoGrounding is wrapped by every grounding failure.
var ErrNoGrounding = errors.New("no context cleared the certainty floor")

func Grounding(op string) *Error {
	return New(KindGrounding, op, ErrNoGrounding)
}

func Provider(op string, err error) *Error {
	return New(KindProvider, op, err)
}

func Index(op string, err error) *Error {
	return New(KindIndex, op, err)
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether retrying the same call may succeed.
func Retryable(err error) bool {
	return KindOf(err) == KindProvider
}
