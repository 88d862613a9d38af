package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures and other negative results
	ExitCommandError = 2 // Bad flags, unreadable config, missing journal, etc.
)

// ExitError carries the process exit code for a failed command.
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

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code for err: the ExitError code when
// there is one, ExitSuccess for nil, ExitFailure otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope is the JSON shape of every command's output.
type Envelope struct {
	Status string     `json:"status"` // "ok" or "error"
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failure in JSON output.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Output writes command results as text or as a JSON envelope.
type Output struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// JSON reports whether output is machine readable.
func (o *Output) JSON() bool { return o.Format == "json" }

// Success writes data. In text mode text renders it; a nil text prints
// data with fmt.
func (o *Output) Success(data any, text func(w io.Writer)) error {
	if o.JSON() {
		return o.encode(Envelope{Status: "ok", Data: data})
	}
	if text == nil {
		_, err := fmt.Fprintln(o.Writer, data)
		return err
	}
	text(o.Writer)
	return nil
}

// Failure writes a failure. data is included in JSON mode so callers can
// report partial results alongside the error.
func (o *Output) Failure(code, message string, data, details any) error {
	if o.JSON() {
		return o.encode(Envelope{
			Status: "error",
			Data:   data,
			Error:  &ErrorBody{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(o.Writer, "Error [%s]: %s\n", code, message)
	if o.Verbose && details != nil {
		fmt.Fprintf(o.Writer, "Details: %v\n", details)
	}
	return nil
}

func (o *Output) encode(env Envelope) error {
	enc := json.NewEncoder(o.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
