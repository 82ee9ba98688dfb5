package errs

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Kinds
// --------------------------------------------------------------------------

// Kind classifies an Error
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindMalformedIdentifier
	KindConnectFailed
	KindPoolExhausted
	KindPoolClosed
	KindInvalidHeader
	KindMalformedStatusLine
	KindMalformedHeader
	KindMalformedChunk
	KindTruncatedBody
	KindWriteFailed
	KindReadFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindMalformedIdentifier:
		return "malformed identifier"
	case KindConnectFailed:
		return "connect failed"
	case KindPoolExhausted:
		return "pool exhausted"
	case KindPoolClosed:
		return "pool closed"
	case KindInvalidHeader:
		return "invalid header"
	case KindMalformedStatusLine:
		return "malformed status line"
	case KindMalformedHeader:
		return "malformed header"
	case KindMalformedChunk:
		return "malformed chunk"
	case KindTruncatedBody:
		return "truncated body"
	case KindWriteFailed:
		return "write failed"
	case KindReadFailed:
		return "read failed"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// ConnectReason narrows down a KindConnectFailed error
type ConnectReason int

const (
	ReasonOther ConnectReason = iota
	ReasonNotFound
	ReasonPermissionDenied
	ReasonConnectionRefused
)

func (r ConnectReason) String() string {
	switch r {
	case ReasonNotFound:
		return "not found"
	case ReasonPermissionDenied:
		return "permission denied"
	case ReasonConnectionRefused:
		return "connection refused"
	default:
		return "other"
	}
}

// --------------------------------------------------------------------------
// Error
// --------------------------------------------------------------------------

// Error is the single error type returned by the client
type Error struct {
	Kind   Kind
	Reason ConnectReason // only meaningful for KindConnectFailed
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	prefix := "unixhttp: " + e.Kind.String()
	if e.Kind == KindConnectFailed {
		prefix += " (" + e.Reason.String() + ")"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	case e.Msg != "":
		return prefix + ": " + e.Msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Sentinels, one per kind. Compare with errors.Is, never with ==.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrMalformedIdentifier = &Error{Kind: KindMalformedIdentifier}
	ErrConnectFailed       = &Error{Kind: KindConnectFailed}
	ErrPoolExhausted       = &Error{Kind: KindPoolExhausted}
	ErrPoolClosed          = &Error{Kind: KindPoolClosed}
	ErrInvalidHeader       = &Error{Kind: KindInvalidHeader}
	ErrMalformedStatusLine = &Error{Kind: KindMalformedStatusLine}
	ErrMalformedHeader     = &Error{Kind: KindMalformedHeader}
	ErrMalformedChunk      = &Error{Kind: KindMalformedChunk}
	ErrTruncatedBody       = &Error{Kind: KindTruncatedBody}
	ErrWriteFailed         = &Error{Kind: KindWriteFailed}
	ErrReadFailed          = &Error{Kind: KindReadFailed}
)

// --------------------------------------------------------------------------
// Constructors and helpers
// --------------------------------------------------------------------------

// New creates an error of the given kind wrapping err (which may be nil)
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ConnectFailed creates a KindConnectFailed error with the given reason
func ConnectFailed(reason ConnectReason, socketPath string, err error) *Error {
	return &Error{
		Kind:   KindConnectFailed,
		Reason: reason,
		Msg:    fmt.Sprintf("dial %s", socketPath),
		Err:    err,
	}
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsFraming reports whether err is a protocol framing violation while parsing a response
func IsFraming(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindMalformedStatusLine, KindMalformedHeader, KindMalformedChunk, KindTruncatedBody:
		return true
	}
	return false
}
