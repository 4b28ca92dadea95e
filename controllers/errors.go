package controllers

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeInvalidSessionCode    Code = "INVALID_SESSION_CODE"
	CodeSessionFull           Code = "SESSION_FULL"
	CodeSessionAlreadyStarted Code = "SESSION_ALREADY_STARTED"
	CodeTooFewPlayers         Code = "TOO_FEW_PLAYERS"
	CodeNotAllReady           Code = "NOT_ALL_READY"
	CodeStaleWrite            Code = "STALE_WRITE"
	CodeRoundInProgress       Code = "ROUND_IN_PROGRESS"
	CodeSessionClosed         Code = "SESSION_CLOSED"
	CodeStoreUnavailable      Code = "STORE_UNAVAILABLE"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
)

// HTTPStatus maps a code to the status the gateway answers with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeInvalidSessionCode, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeSessionFull, CodeSessionAlreadyStarted, CodeStaleWrite, CodeRoundInProgress:
		return http.StatusConflict
	case CodeTooFewPlayers, CodeNotAllReady:
		return http.StatusPreconditionFailed
	case CodeSessionClosed:
		return http.StatusGone
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a session error with a code the UI can branch on.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrSessionNotFound       = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrInvalidSessionCode    = &Error{Code: CodeInvalidSessionCode, Message: "session code must be 6 characters"}
	ErrSessionFull           = &Error{Code: CodeSessionFull, Message: "session is full"}
	ErrSessionAlreadyStarted = &Error{Code: CodeSessionAlreadyStarted, Message: "session already started"}
	ErrTooFewPlayers         = &Error{Code: CodeTooFewPlayers, Message: "you are alone, at least 2 players are needed"}
	ErrNotAllReady           = &Error{Code: CodeNotAllReady, Message: "not all players are ready"}
	ErrStaleWrite            = &Error{Code: CodeStaleWrite, Message: "session changed under this write"}
	ErrRoundInProgress       = &Error{Code: CodeRoundInProgress, Message: "cannot leave while a round is in progress"}
	ErrSessionClosed         = &Error{Code: CodeSessionClosed, Message: "session handle is closed"}
	ErrStoreUnavailable      = &Error{Code: CodeStoreUnavailable, Message: "session store unavailable"}
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// storeError passes session errors through and marks anything else
// coming back from the store as transient.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeStoreUnavailable, Message: op, Cause: err}
}

// CodeOf extracts the code of err, or "" when it carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
