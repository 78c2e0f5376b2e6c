package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/bindform/internal/codec"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/objpath"
)

// Error is returned synchronously by session and registry operations.
//
// Validation failures on field edits are not errors; they are reported
// through Hooks.OnValidationFail. Error carries the failures a caller
// has to act on: malformed arguments, misses, and binding state.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation that failed, e.g. "set_field".
	Op string

	// Path is the bound path involved, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// CodeInvalidArgument indicates a malformed path or a nil form.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// CodeValidationFailure indicates a value rejected by a rule.
	CodeValidationFailure ErrorCode = "VALIDATION_FAILURE"

	// CodeCodecError indicates a history blob could not be encoded or decoded.
	CodeCodecError ErrorCode = "CODEC_ERROR"

	// CodeNotFound indicates a history reference matched no entry.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyBound indicates the form already has a session.
	CodeAlreadyBound ErrorCode = "ALREADY_BOUND"

	// CodeNotBound indicates the form has no session, or the session was
	// destroyed.
	CodeNotBound ErrorCode = "NOT_BOUND"
)

// Sentinels for errors.Is. Each matches every *Error of its code;
// CODEC_ERROR errors match codec.ErrCodec through their cause.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrValidation      = errors.New("validation failure")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyBound    = errors.New("form already bound")
	ErrNotBound        = errors.New("form not bound")
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case CodeInvalidArgument:
		return target == ErrInvalidArgument
	case CodeValidationFailure:
		return target == ErrValidation
	case CodeNotFound:
		return target == ErrNotFound
	case CodeAlreadyBound:
		return target == ErrAlreadyBound
	case CodeNotBound:
		return target == ErrNotBound
	}
	return false
}

// wrapError classifies err from a lower package under op. Errors of
// unknown origin (backend I/O) are wrapped without a code.
func wrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	var code ErrorCode
	switch {
	case errors.Is(err, history.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, codec.ErrCodec):
		code = CodeCodecError
	case errors.Is(err, objpath.ErrInvalidArgument):
		code = CodeInvalidArgument
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func codeOf(err error) (ErrorCode, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

// IsInvalidArgument reports whether err is an INVALID_ARGUMENT error.
// Uses errors.As to handle wrapped errors.
func IsInvalidArgument(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeInvalidArgument
}

// IsValidationFailure reports whether err is a VALIDATION_FAILURE error.
func IsValidationFailure(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeValidationFailure
}

// IsCodecError reports whether err is a CODEC_ERROR error.
func IsCodecError(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeCodecError
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeNotFound
}

// IsAlreadyBound reports whether err is an ALREADY_BOUND error.
func IsAlreadyBound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeAlreadyBound
}

// IsNotBound reports whether err is a NOT_BOUND error.
func IsNotBound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeNotBound
}
