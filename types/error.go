package types

import "fmt"

// ErrorCode represents a unified error code across the routing core.
type ErrorCode string

// Registry error codes
const (
	ErrDuplicateAgent ErrorCode = "DUPLICATE_AGENT"
	ErrAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"
	ErrInvalidState   ErrorCode = "INVALID_STATE"
)

// Routing error codes
const (
	ErrNoRouteFound      ErrorCode = "NO_ROUTE_FOUND"
	ErrEscalation        ErrorCode = "ESCALATION"
	ErrStrategyExecution ErrorCode = "STRATEGY_EXECUTION"
	ErrDecisionTimeout   ErrorCode = "DECISION_TIMEOUT"
)

// Configuration error codes
const (
	ErrDependencyCycle ErrorCode = "DEPENDENCY_CYCLE"
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"
	ErrTeamNotFound    ErrorCode = "TEAM_NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Target    string    `json:"target,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithTarget records the agent or team the error refers to.
func (e *Error) WithTarget(target string) *Error {
	e.Target = target
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
