package core

import (
	"errors"
	"fmt"
)

// Code categorizes vault errors. Every failure surfaced by the engine
// carries exactly one code so that callers can branch without parsing
// message text; the envelope still flattens the whole error to a string
// for boundary compatibility.
type Code string

const (
	// CodeAuthorization indicates the caller lacks group or admin rights.
	CodeAuthorization Code = "AUTHORIZATION"

	// CodeNotFound indicates a handle, path, group or message is absent.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict indicates a unique-key collision, e.g. rename onto an
	// existing path or creating a vault in an initialized location.
	CodeConflict Code = "CONFLICT"

	// CodeCrypto indicates a decryption or key-resolution failure.
	CodeCrypto Code = "CRYPTO"

	// CodeQuotaExceeded indicates the vault quota is exhausted.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"

	// CodeInsufficientKeys indicates the requested epoch range is not
	// covered by the caller's membership window.
	CodeInsufficientKeys Code = "INSUFFICIENT_KEYS"

	// CodeQuery indicates a structured-store failure; the message wraps
	// the underlying engine's text.
	CodeQuery Code = "QUERY"

	// CodeConcurrency indicates illegal concurrent access to a serialized
	// resource such as a replay cursor.
	CodeConcurrency Code = "CONCURRENCY"
)

// Codes lists every error code, for callers that reconstruct typed
// errors from their string form.
func Codes() []Code {
	return []Code{
		CodeAuthorization, CodeNotFound, CodeConflict, CodeCrypto,
		CodeQuotaExceeded, CodeInsufficientKeys, CodeQuery, CodeConcurrency,
	}
}

// Error is the engine error type. Message is human-readable; Err holds
// the wrapped cause, if any.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errf creates an Error with the given code and formatted message.
// When the last argument is an error it is also kept as the wrapped
// cause, matching the %w convention.
func Errf(code Code, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{
		Code:    code,
		Message: err.Error(),
		Err:     errors.Unwrap(err),
	}
}

// HasCode returns true if err (or any wrapped error) is an Error with
// the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsAuthorization(err error) bool     { return HasCode(err, CodeAuthorization) }
func IsNotFound(err error) bool          { return HasCode(err, CodeNotFound) }
func IsConflict(err error) bool          { return HasCode(err, CodeConflict) }
func IsCrypto(err error) bool            { return HasCode(err, CodeCrypto) }
func IsQuotaExceeded(err error) bool     { return HasCode(err, CodeQuotaExceeded) }
func IsInsufficientKeys(err error) bool  { return HasCode(err, CodeInsufficientKeys) }
func IsQuery(err error) bool             { return HasCode(err, CodeQuery) }
func IsConcurrency(err error) bool       { return HasCode(err, CodeConcurrency) }
