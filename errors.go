package toolsynth

import (
	"errors"
	"fmt"
)

// Sentinel errors for toolsynth. Use errors.Is to check.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrDuplicateTool = errors.New("duplicate tool")
	ErrInvalidTool   = errors.New("invalid tool definition")
	ErrValidation    = errors.New("validation failed")
	ErrOracle        = errors.New("oracle failure")
	ErrStructural    = errors.New("structural inconsistency")
)

// ClientError reports bad input produced by a caller or an oracle (invalid JSON, schema
// violation). The Reason is safe to feed back to the oracle for self-correction.
type ClientError struct {
	Reason string
	Err    error // wrapped sentinel for errors.Is/errors.As
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure such as a recovered panic.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	if e.Err == nil {
		return "internal system error"
	}
	return "internal system error: " + e.Err.Error()
}

func (e *SystemError) Unwrap() error { return e.Err }

// OracleError is a failed, timed out or unparseable oracle call. It is always recoverable:
// callers substitute a conservative default and continue.
type OracleError struct {
	Op     string
	Reason string
	// Retryable is true when the same request may succeed if repeated (rate limit, timeout).
	Retryable bool
	Err       error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %s", e.Op, e.Reason)
}

// Unwrap exposes both ErrOracle and the underlying cause.
func (e *OracleError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOracle}
	}
	return []error{ErrOracle, e.Err}
}

// StructuralError means a ledger and its path have diverged. It is fatal for the path it
// occurred in and for nothing else.
type StructuralError struct {
	Reason string
	Tool   string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Tool == "" {
		return "structural inconsistency: " + e.Reason
	}
	return fmt.Sprintf("structural inconsistency: %s (tool %s)", e.Reason, e.Tool)
}

func (e *StructuralError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStructural}
	}
	return []error{ErrStructural, e.Err}
}

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// IsOracleError returns true if err is or wraps an OracleError.
func IsOracleError(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}

// IsStructuralError returns true if err is or wraps a StructuralError.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// PanicError wraps a recovered panic value.
type PanicError struct{ Value any }

func (e *PanicError) Error() string {
	return "panic: " + fmt.Sprint(e.Value)
}

// wrapJSONParseError returns a ClientError for JSON unmarshal failures.
func wrapJSONParseError(err error) error {
	return &ClientError{Reason: "json parse error: " + err.Error(), Err: ErrValidation}
}
