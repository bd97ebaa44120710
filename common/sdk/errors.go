package sdk

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType labels the failure taxonomy carried in result metadata.
type ErrorType string

const (
	ErrTypeConfig     ErrorType = "ConfigError"
	ErrTypeDependency ErrorType = "DependencyError"
	ErrTypeExpression ErrorType = "ExpressionError"
	ErrTypeExecutor   ErrorType = "ExecutorError"
	ErrTypeTimeout    ErrorType = "Timeout"
	ErrTypeValidation ErrorType = "ValidationError"
	ErrTypeGuardAbort ErrorType = "GuardAbort"
	ErrTypePolicyStop ErrorType = "PolicyStop"
	ErrTypeUnknown    ErrorType = "UnknownError"
)

// Error is the typed workflow error used across the engine.
type Error struct {
	Type   ErrorType
	NodeID string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.NodeID != "" {
		prefix = fmt.Sprintf("%s [node %s]", prefix, e.NodeID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(t ErrorType, nodeID, format string, args ...interface{}) *Error {
	return &Error{Type: t, NodeID: nodeID, Msg: fmt.Sprintf(format, args...)}
}

// NewConfigError reports an invalid workflow definition. Fatal at load time.
func NewConfigError(nodeID, format string, args ...interface{}) *Error {
	return newError(ErrTypeConfig, nodeID, format, args...)
}

// NewDependencyError reports a missing or unresolvable dependency output.
// Non-retryable.
func NewDependencyError(nodeID, format string, args ...interface{}) *Error {
	return newError(ErrTypeDependency, nodeID, format, args...)
}

// NewExpressionError reports a condition expression that failed to evaluate.
// Non-retryable.
func NewExpressionError(nodeID, format string, args ...interface{}) *Error {
	return newError(ErrTypeExpression, nodeID, format, args...)
}

// NewExecutorError reports an executor failure. Retryable up to the node's
// retry budget.
func NewExecutorError(nodeID, format string, args ...interface{}) *Error {
	return newError(ErrTypeExecutor, nodeID, format, args...)
}

// NewValidationError reports an output that failed schema validation.
// Non-retryable.
func NewValidationError(nodeID, format string, args ...interface{}) *Error {
	return newError(ErrTypeValidation, nodeID, format, args...)
}

// NewGuardAbort reports a tripped token or depth guard.
func NewGuardAbort(format string, args ...interface{}) *Error {
	return newError(ErrTypeGuardAbort, "", format, args...)
}

// ClassifyError maps an arbitrary error to its taxonomy label.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}
	return ErrTypeUnknown
}

// Retryable reports whether the attempt loop may retry after err.
// Dependency, expression and validation failures are deterministic and are
// never retried.
func Retryable(err error) bool {
	switch ClassifyError(err) {
	case ErrTypeDependency, ErrTypeExpression, ErrTypeValidation, ErrTypeConfig,
		ErrTypeGuardAbort, ErrTypePolicyStop:
		return false
	default:
		return true
	}
}
