package model

import (
	"errors"
	"fmt"
)

// Kind classifies inference failures.
type Kind int

const (
	KindBackend Kind = iota
	KindEndOfText
	KindContextFull
)

func (k Kind) String() string {
	switch k {
	case KindEndOfText:
		return "end of text"
	case KindContextFull:
		return "context full"
	default:
		return "backend"
	}
}

var (
	ErrEndOfText   = errors.New("end of text")
	ErrContextFull = errors.New("context window full")
	ErrClosed      = errors.New("session closed")
)

// InferenceError is returned by Session.Feed and Session.NextToken.
type InferenceError struct {
	Op   string // "feed" or "next_token"
	Kind Kind
	Err  error
}

func (e *InferenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *InferenceError) Is(target error) bool {
	switch target {
	case ErrEndOfText:
		return e.Kind == KindEndOfText
	case ErrContextFull:
		return e.Kind == KindContextFull
	}
	return false
}

// EndOfText is the normal end-of-generation error.
func EndOfText(op string) error {
	return &InferenceError{Op: op, Kind: KindEndOfText}
}

// ContextFull reports an exhausted context window.
func ContextFull(op string) error {
	return &InferenceError{Op: op, Kind: KindContextFull}
}

// BackendError wraps a runtime failure.
func BackendError(op string, err error) error {
	return &InferenceError{Op: op, Kind: KindBackend, Err: err}
}

// IsInferenceError reports whether err is or wraps an *InferenceError.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// dependencyUnavailableError signals a runtime that is not compiled in.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}
