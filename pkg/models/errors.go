package models

import (
	"fmt"
	"strings"
)

type AppError struct {
	AppErrorType AppErrorType
	Err          error
}

type AppErrorType string

func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.AppErrorType, e.Err)
	}
	return string(e.AppErrorType)
}

func (e AppError) Unwrap() error {
	return e.Err
}

const (
	ErrInterrupted   AppErrorType = "exited with interrupt"
	ErrCommandError  AppErrorType = "exited due to command error"
	ErrUnExpected    AppErrorType = "an unexpected error occurred"
	ErrTestFailure   AppErrorType = "one or more tests failed"
	ErrThresholdFail AppErrorType = "load test thresholds were not met"
)

// ValidationError reports the first rule an entity violates.
type ValidationError struct {
	Entity string
	Rule   string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Rule)
	}
	return fmt.Sprintf("invalid %s: %s: %s", e.Entity, e.Rule, e.Msg)
}

// InvalidTransitionError is returned when a status change is not an edge of the
// scenario lifecycle graph.
type InvalidTransitionError struct {
	From ScenarioStatus
	To   ScenarioStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// NotFoundError names every id that could not be resolved.
type NotFoundError struct {
	Kind string
	IDs  []string
	// Msg replaces the generated message when set.
	Msg        string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	msg := e.Msg
	if msg == "" {
		if len(e.IDs) == 1 {
			msg = fmt.Sprintf("%s not found: %s", e.Kind, e.IDs[0])
		} else {
			msg = fmt.Sprintf("%ss not found: %s", e.Kind, strings.Join(e.IDs, ", "))
		}
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// UnsupportedFormatError is returned for unknown import, export or report formats.
type UnsupportedFormatError struct {
	Format    string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q, supported formats are %s", e.Format, strings.Join(e.Supported, ", "))
}
