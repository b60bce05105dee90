// Package cli provides shared configuration and error handling for the
// migsafe CLI.
package cli

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes. The command contract is binary: anything that is not a clean
// run exits 1, whether it is bad input, audit findings or a tool failure.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// ExitError wraps an error with an exit code and a classification message.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitWithError prints the error as one clear paragraph and exits. Expected
// failure modes never get a stack trace.
func ExitWithError(err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", exitErr.Error())
		os.Exit(exitErr.Code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitFailure)
}

// ConfigError classifies a configuration problem.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Err: err}
}

// ValidationError classifies bad input; no partial state has been written.
func ValidationError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Err: err}
}

// ToolError classifies an external schema tool failure.
func ToolError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Err: err}
}

// LedgerError classifies a ledger I/O failure.
func LedgerError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Err: err}
}

// FindingsError signals that an audit command found drift or violations.
// Findings are the expected structured output of an audit, not an exception;
// this only carries the non-zero exit.
func FindingsError(msg string) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg}
}

// GeneralError classifies everything else.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Err: err}
}
