package errors

import (
	"fmt"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Critical errors that should stop the agent
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Recovered locally: a sizing failure yields a zero-quantity no-trade
	ErrorCategorySizing ErrorCategory = "SIZING"
	// Recovered locally: a gate rejection is surfaced as an event, never escalated
	ErrorCategoryGate ErrorCategory = "GATE"
	// Broker-reported failure; no automatic retry at this layer
	ErrorCategoryBroker ErrorCategory = "BROKER"
	// Order fate unknown; the symbol may not trade again until reconciled
	ErrorCategoryReconciliation ErrorCategory = "RECONCILIATION"

	ErrorCategoryNetwork ErrorCategory = "NETWORK"
	ErrorCategoryTimeout ErrorCategory = "TIMEOUT"
	ErrorCategoryState   ErrorCategory = "STATE"
)

// AgentError represents a categorized error with context
type AgentError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

// Error implements the error interface
func (e *AgentError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s in %s: %v", e.Category, e.Component, e.Message, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s in %s", e.Category, e.Component, e.Message, e.Operation)
}

// Unwrap returns the underlying error for error unwrapping
func (e *AgentError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *AgentError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the agent
func (e *AgentError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryConfiguration
}

// NewAgentError creates a new categorized agent error
func NewAgentError(category ErrorCategory, component, operation, message string) *AgentError {
	return &AgentError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with agent error context
func WrapError(err error, category ErrorCategory, component, operation string) *AgentError {
	if err == nil {
		return nil
	}

	return &AgentError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *AgentError) WithContext(key string, value interface{}) *AgentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// isRetryableCategory determines if an error category is generally retryable
func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout:
		return true
	case ErrorCategoryFatal, ErrorCategoryConfiguration,
		ErrorCategorySizing, ErrorCategoryGate, ErrorCategoryBroker,
		ErrorCategoryReconciliation:
		return false
	default:
		return false
	}
}

// Common error constructors. Sizing failures and gate rejections never
// surface as errors (they resolve to zero-quantity or rejected decisions),
// so no constructors exist for those categories.

func NewBrokerError(component, operation string, err error) *AgentError {
	return WrapError(err, ErrorCategoryBroker, component, operation)
}

func NewReconciliationError(component, operation, message string) *AgentError {
	return NewAgentError(ErrorCategoryReconciliation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *AgentError {
	return NewAgentError(ErrorCategoryConfiguration, component, operation, message)
}

func NewStateError(component, operation string, err error) *AgentError {
	return WrapError(err, ErrorCategoryState, component, operation)
}

// RecoveryAction suggests how a caller should respond to an error
type RecoveryAction string

const (
	RecoveryActionRetry     RecoveryAction = "RETRY"
	RecoveryActionSkip      RecoveryAction = "SKIP"
	RecoveryActionStop      RecoveryAction = "STOP"
	RecoveryActionReconcile RecoveryAction = "RECONCILE"
)

// GetRecoveryAction suggests a recovery action based on error category
func (e *AgentError) GetRecoveryAction() RecoveryAction {
	switch e.Category {
	case ErrorCategoryFatal, ErrorCategoryConfiguration:
		return RecoveryActionStop
	case ErrorCategoryReconciliation:
		return RecoveryActionReconcile
	case ErrorCategoryNetwork, ErrorCategoryTimeout:
		return RecoveryActionRetry
	case ErrorCategorySizing, ErrorCategoryGate, ErrorCategoryBroker:
		return RecoveryActionSkip
	default:
		if e.Retryable {
			return RecoveryActionRetry
		}
		return RecoveryActionSkip
	}
}
