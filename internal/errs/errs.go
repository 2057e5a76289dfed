// Package errs provides the coded error type shared by the record platform.
//
// Import it as errs and construct errors with New / Wrap; callers branch on
// CodeOf rather than on message text.
package errs

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and the HTTP boundary.
type Code uint16

const (
	// CodeUnknown is for unclassified errors
	CodeUnknown Code = iota
	// CodeInvalidArgument covers malformed requests, failed record invariants and origin mismatches
	CodeInvalidArgument
	// CodeNotFound is for missing resources outside soft-not-found reads
	CodeNotFound
	// CodeForbidden is for missing health permissions
	CodeForbidden
	// CodeUnauthenticated is for missing or invalid caller identity
	CodeUnauthenticated
	// CodeUnavailable is returned while the data API is blocked by a migration
	CodeUnavailable
	// CodeMigrateEntity marks a single staged migration entity that failed to apply
	CodeMigrateEntity
	// CodeIllegalState is for calls made in the wrong migration state
	CodeIllegalState
	// CodeInternal is for storage and transport failures
	CodeInternal
)

var codeNames = map[Code]string{
	CodeUnknown:         "unknown",
	CodeInvalidArgument: "invalid_argument",
	CodeNotFound:        "not_found",
	CodeForbidden:       "forbidden",
	CodeUnauthenticated: "unauthenticated",
	CodeUnavailable:     "api_blocked",
	CodeMigrateEntity:   "migrate_entity",
	CodeIllegalState:    "illegal_state",
	CodeInternal:        "internal",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// HTTPStatus maps a code to an http status.
func HTTPStatus(c Code) int {
	switch c {
	case CodeInvalidArgument, CodeMigrateEntity:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeIllegalState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type. msg is developer facing, code machine facing.
type Error struct {
	orig error
	msg  string
	code Code
	op   string
}

// Wire is the JSON form returned by the API.
type Wire struct {
	Type    string `json:"type"`
	Detail  string `json:"detail"`
	Entity  string `json:"failed_entity_id,omitempty"`
	Op      string `json:"op,omitempty"`
	Wrapped string `json:"cause,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", msg, e.orig)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code.
func (e *Error) Code() Code { return e.code }

// Op returns the operation label, if set.
func (e *Error) Op() string { return e.op }

// Message returns the message without op or cause.
func (e *Error) Message() string { return e.msg }

// New builds an error with a code and message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf builds an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to a cause. A nil cause yields nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{orig: err, code: code, msg: msg}
}

// WithOp returns a copy tagged with an operation name.
func (e *Error) WithOp(op string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.op = op
	return &cp
}

// InvalidArgument is shorthand for New(CodeInvalidArgument, fmt.Sprintf(...)).
func InvalidArgument(format string, args ...any) *Error {
	return Newf(CodeInvalidArgument, format, args...)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts a Code from any error, defaulting to CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var ee *EntityError
	if stderrs.As(err, &ee) {
		return CodeMigrateEntity
	}
	if e, ok := As(err); ok {
		return e.code
	}
	return CodeUnknown
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// EntityError reports a staged migration entity that failed to apply.
type EntityError struct {
	EntityID string
	Reason   string
	Err      error
}

func (e *EntityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("migrate entity %q: %s: %v", e.EntityID, e.Reason, e.Err)
	}
	return fmt.Sprintf("migrate entity %q: %s", e.EntityID, e.Reason)
}

func (e *EntityError) Unwrap() error { return e.Err }

// FailedEntityID returns the entity id of the first EntityError in err's chain.
func FailedEntityID(err error) (string, bool) {
	var ee *EntityError
	if stderrs.As(err, &ee) {
		return ee.EntityID, true
	}
	return "", false
}

// ToWire converts any error into its API form.
func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}
	w := Wire{Type: CodeOf(err).String(), Detail: err.Error()}
	if e, ok := As(err); ok {
		w.Detail = e.msg
		w.Op = e.op
		if e.orig != nil {
			w.Wrapped = e.orig.Error()
		}
	}
	if id, ok := FailedEntityID(err); ok {
		w.Entity = id
		w.Detail = err.Error()
	}
	return w
}
