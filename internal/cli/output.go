package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/picking"
	"github.com/roach88/odoorpc/internal/rpc"
	"github.com/roach88/odoorpc/internal/snapshot"
	"github.com/roach88/odoorpc/internal/value"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operational failure (remote error, failed or mismatched updates)
	ExitCommandError = 2 // Command error (bad flags, invalid config, unreadable files)
)

// Error codes reported in CLI error responses.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeCommand        = "E002" // Invalid command, flags, or config
	ErrCodeAuthentication = "E101" // Login rejected
	ErrCodeSessionExpired = "E102" // Session could not be re-established
	ErrCodeNotFound       = "E103" // Record does not exist
	ErrCodeWriteRejected  = "E104" // Write refused by the server
	ErrCodeRemote         = "E105" // Other server-side fault
	ErrCodeTransport      = "E106" // Network or HTTP failure
	ErrCodeWizard         = "E107" // Validation needs user input
	ErrCodeBatch          = "E108" // Batch finished with failures
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// errBatchFailed marks a batch that completed with non-ok records.
var errBatchFailed = errors.New("batch finished with failures")

// errorCode classifies err for error responses.
func errorCode(err error) string {
	var (
		exitErr   *ExitError
		transport *rpc.TransportError
		wizard    *picking.WizardRequiredError
	)
	switch {
	case errors.Is(err, errBatchFailed):
		return ErrCodeBatch
	case rpc.IsAuthentication(err):
		return ErrCodeAuthentication
	case rpc.IsSessionExpired(err):
		return ErrCodeSessionExpired
	case odoo.IsNotFound(err):
		return ErrCodeNotFound
	case odoo.IsWriteRejected(err):
		return ErrCodeWriteRejected
	case errors.As(err, &wizard):
		return ErrCodeWizard
	case errors.As(err, &transport):
		return ErrCodeTransport
	}
	if _, ok := rpc.AsRPCError(err); ok {
		return ErrCodeRemote
	}
	if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
		return ErrCodeCommand
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. In text
// mode, structured values are printed as indented JSON and Stringers as
// their String form.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	switch d := data.(type) {
	case value.Value:
		b, err := snapshot.Encode(d)
		if err != nil {
			return err
		}
		_, err = f.Writer.Write(b)
		return err
	case fmt.Stringer:
		fmt.Fprintln(f.Writer, d.String())
	default:
		fmt.Fprintln(f.Writer, data)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// reportView renders a batch report in text mode and as the report itself
// in JSON.
type reportView struct {
	*batch.BatchReport
}

func (r reportView) String() string {
	return strings.Join(append(r.Lines(), r.Summary()), "\n")
}

func (r reportView) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.BatchReport)
}
