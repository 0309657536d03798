package aom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thesyncim/aom/internal/native"
)

// Kind classifies every error returned by this package.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalidArgument: a precondition failed before any native call.
	KindInvalidArgument
	// KindAllocationFailure: the native library could not allocate memory.
	KindAllocationFailure
	// KindUnsupportedOperation: the library or build does not implement the request.
	KindUnsupportedOperation
	// KindNativeFailure: any other nonzero native status. Error.Code holds it.
	KindNativeFailure
	// KindNeedMoreData: the coder needs more input before it can produce output.
	KindNeedMoreData
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindAllocationFailure:
		return "allocation failure"
	case KindUnsupportedOperation:
		return "unsupported operation"
	case KindNativeFailure:
		return "native failure"
	case KindNeedMoreData:
		return "need more data"
	default:
		return "unknown"
	}
}

// Failure reports whether the kind is a real failure. KindNeedMoreData is an
// expected outcome of pulling output, not a failure.
func (k Kind) Failure() bool {
	return k != KindNeedMoreData && k != KindUnknown
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Op      string // Operation that failed, e.g. "Encoder.Encode"
	Kind    Kind
	Code    int    // Native aom_codec_err_t, zero unless Kind is native
	Message string // aom_codec_err_to_string, or a description of the bad argument
	Detail  string // aom_codec_error_detail, when the library provided one
	Err     error  // Underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("aom")
	if e.Op != "" {
		b.WriteString(".")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below: errors.Is(err, ErrNeedMoreData).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Code != 0 || t.Message != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrAllocationFailure    = &Error{Kind: KindAllocationFailure}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	ErrNativeFailure        = &Error{Kind: KindNativeFailure}
	ErrNeedMoreData         = &Error{Kind: KindNeedMoreData}
)

var (
	// ErrClosed is the cause of errors from a handle used after Close.
	ErrClosed = errors.New("handle closed")

	// ErrLibraryUnavailable is the cause when libaom cannot be loaded.
	ErrLibraryUnavailable = native.ErrUnavailable
)

// KindOf returns the Kind of err, or KindUnknown if err did not come from
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NativeCode returns the native status code carried by err.
func NativeCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code, true
	}
	return 0, false
}

// IsNeedMoreData reports whether err means "feed more input".
func IsNeedMoreData(err error) bool {
	return KindOf(err) == KindNeedMoreData
}

func invalidArg(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func closedError(op string) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Err: ErrClosed}
}

func unavailableError(op string, err error) error {
	return &Error{Op: op, Kind: KindUnsupportedOperation, Err: err}
}

func needMoreData(op string) error {
	return &Error{Op: op, Kind: KindNeedMoreData}
}

// kindForStatus maps an aom_codec_err_t onto a Kind.
func kindForStatus(st native.Status) Kind {
	switch st {
	case native.StatusOK:
		return KindUnknown
	case native.StatusMemError:
		return KindAllocationFailure
	case native.StatusIncapable, native.StatusUnsupFeature:
		return KindUnsupportedOperation
	case native.StatusListEnd:
		return KindNeedMoreData
	default:
		return KindNativeFailure
	}
}

// statusError converts a native status into an *Error, or nil for success.
// h may be zero when no context exists yet; detail then comes from the caller.
func statusError(lib native.Library, h native.Handle, op string, st native.Status, detail string) error {
	if st == native.StatusOK {
		return nil
	}
	return newStatusError(lib, h, op, st, detail)
}

func newStatusError(lib native.Library, h native.Handle, op string, st native.Status, detail string) *Error {
	e := &Error{
		Op:      op,
		Kind:    kindForStatus(st),
		Code:    int(st),
		Message: lib.ErrString(st),
		Detail:  detail,
	}
	if h != 0 && e.Detail == "" {
		_, e.Detail = lib.Error(h)
	}
	return e
}
