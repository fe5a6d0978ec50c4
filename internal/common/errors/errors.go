// internal/common/errors/errors.go

// Package errors provides standardized error handling for the
// validation pipeline and its BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Run-fatal errors abort the remaining loop and mark the run FAILED.
	ErrCodeRequirementsNotFound ErrorCode = "REQUIREMENTS_NOT_FOUND"
	ErrCodeEmptyDocumentSet     ErrorCode = "EMPTY_DOCUMENT_SET"
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeRunNotFound          ErrorCode = "RUN_NOT_FOUND"
	ErrCodeRunCancelled         ErrorCode = "RUN_CANCELLED"

	// Requirement-scoped errors are recorded on that requirement's
	// result and the loop continues.
	ErrCodeProviderTransient  ErrorCode = "PROVIDER_TRANSIENT"
	ErrCodeProviderRejected   ErrorCode = "PROVIDER_REJECTED"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeRetriesExhausted   ErrorCode = "PROVIDER_RETRIES_EXHAUSTED"

	// Persistence errors.
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeResultWriteFailed        ErrorCode = "RESULT_WRITE_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the ErrorCode from any error in the chain, or ""
// when the error carries no code.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsRunFatal reports whether the error must abort the whole run rather
// than a single requirement.
func IsRunFatal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRequirementsNotFound, ErrCodeEmptyDocumentSet,
		ErrCodeTemplateNotFound, ErrCodeRunNotFound, ErrCodeRunCancelled:
		return true
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewRequirementsNotFoundError signals that zero requirements resolved
// for a unit. Run-fatal: there is nothing to validate.
func NewRequirementsNotFoundError(unitIdentifier string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRequirementsNotFound,
		Message:   "No requirements resolved for unit",
		Details:   fmt.Sprintf("unit: %s", unitIdentifier),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmptyDocumentSetError signals a run started without any indexed
// source documents. Run-fatal: no evidence is possible.
func NewEmptyDocumentSetError(runID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmptyDocumentSet,
		Message:   "Validation run has no source documents",
		Details:   fmt.Sprintf("runId: %s", runID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError signals a missing prompt template for a
// category/version pair. Run-fatal configuration defect; a silent
// generic substitute would only surface as schema mismatches later.
func NewTemplateNotFoundError(category, version string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Prompt template not registered",
		Details:   fmt.Sprintf("category: %s, version: %s", category, version),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunNotFoundError signals an unknown run id.
func NewRunNotFoundError(runID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRunNotFound,
		Message:   "Validation run not found",
		Details:   fmt.Sprintf("runId: %s", runID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunCancelledError signals the run was cancelled between
// requirement calls.
func NewRunCancelledError(runID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRunCancelled,
		Message:   "Validation run cancelled",
		Details:   fmt.Sprintf("runId: %s", runID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTransientError wraps a retryable provider failure
// (429, 5xx, connection errors).
func NewProviderTransientError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTransient,
		Message:   "Transient generative model API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderRejectedError wraps a non-retryable provider failure
// (4xx other than 429). The requirement fails immediately.
func NewProviderRejectedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderRejected,
		Message:   "Generative model API rejected the request",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderTimeoutError signals a single model call exceeded its
// wall-clock timeout. Treated identically to a transient failure.
func NewProviderTimeoutError(timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Generative model call timed out",
		Details:   fmt.Sprintf("timeout: %s", timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetriesExhaustedError wraps the last transient failure after the
// bounded attempt count ran out. Requirement-scoped, not retryable.
func NewRetriesExhaustedError(attempts int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetriesExhausted,
		Message:   "Generative model call failed after all retries",
		Details:   fmt.Sprintf("attempts: %d, lastError: %v", attempts, err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewDatabaseConnectionFailedError creates a retryable database error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewResultWriteFailedError creates a retryable result persistence error.
func NewResultWriteFailedError(runID string, requirementID int64, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResultWriteFailed,
		Message:   "Failed to persist validation result",
		Details:   fmt.Sprintf("runId: %s, requirementId: %d, error: %s", runID, requirementID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewQueryExecutionFailedError creates a retryable query error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. BPMN Error Integration
// ==========================

// BPMNError represents an error thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// GetRetryCount returns the recommended Zeebe retry count per code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeResultWriteFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeProviderTransient:
		return 3

	case ErrCodeProviderTimeout:
		return 2

	default:
		// Run-fatal and rejected errors: no engine-level retry.
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}
