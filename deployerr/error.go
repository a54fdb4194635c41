// Package deployerr defines the typed error taxonomy shared by every
// deployment-engine component so the controller can map failures to HTTP
// responses without string-matching messages.
package deployerr

import (
	"errors"
	"fmt"
)

// Code names one of the error kinds a deployment operation can fail with.
type Code string

const (
	// Misconfigured means the deployment lacks a required field for the
	// step being attempted (e.g. a dashboard step without bigboat_key).
	Misconfigured Code = "misconfigured"
	// BadBuild means CI preconditions were not satisfied.
	BadBuild Code = "bad_build"
	// SourceUnavailable means the upstream source refresh failed.
	SourceUnavailable Code = "source_unavailable"
	// SecretWriteFailed means an I/O error occurred writing a secret file.
	SecretWriteFailed Code = "secret_write_failed"
	// ScriptFailed means the user script exited non-zero.
	ScriptFailed Code = "script_failed"
	// ServiceRestartFailed means the service-restart tool exited non-zero.
	ServiceRestartFailed Code = "service_restart_failed"
	// DashboardUpdateFailed means the dashboard API returned a failure.
	DashboardUpdateFailed Code = "dashboard_update_failed"
	// Interrupted means a cooperative stop was observed.
	Interrupted Code = "interrupted"
	// NotFound means a deployment name is unknown.
	NotFound Code = "not_found"
	// Conflict means a duplicate name on create, or a deploy already
	// underway on POST-deploy.
	Conflict Code = "conflict"
	// BadRequest means a request was missing or carried invalid parameters.
	BadRequest Code = "bad_request"
)

// Error is a typed error carrying a taxonomy code, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e Error) Unwrap() error {
	return e.Err
}

// New constructs a typed Error.
func New(code Code, message string, err error) Error {
	return Error{Code: code, Message: message, Err: err}
}

// Newf constructs a typed Error with a formatted message.
func Newf(code Code, err error, format string, args ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns err's taxonomy code, or "" if err is not (and does not
// wrap) an Error.
func CodeOf(err error) Code {
	var de Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
