package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ErrFailedReleaseStaleSyncs        = "Failed to release stale syncs"
	ErrorFailedToConnectToTheDatabase = "Failed to connect to the database"
	ErrorFailedToRunMigrations        = "Failed to run database migrations"
	ErrorFailedToRunTheServer         = "Failed to run the server"
	ErrorFailedToShutdownTheServer    = "Failed to shutdown the server"
	ErrorFailedToConnectToRedis       = "Failed to connect to redis"
	ErrFailedDecodeRequestBody        = "Failed to decode request body"
	ErrInvalidRequestBody             = "Invalid request body"
	ErrFailedImportTransactions       = "Failed to import transactions"
	ErrFailedSyncTransaction          = "Failed to sync transaction"
	ErrFailedListTransactions         = "Failed to list transactions"
	ErrFailedLoadSettings             = "Failed to load settings"
	ErrFailedSaveSettings             = "Failed to save settings"
	ErrFailedCheckSettings            = "Failed to check settings"
	ErrFailedPublishProgress          = "Failed to publish progress"
	ErrFailedUpgradeStream            = "Failed to upgrade progress stream"
	ErrDateRangeRequired              = "from and to dates are required"
	ErrInvalidDateRange               = "Invalid date range"
	ErrTransactionIDRequired          = "Transaction ID is required"
	ErrTransactionIDsRequired         = "transaction_ids is required"
	ErrInvalidTransactionStatus       = "Invalid transaction status"
	ErrMissingSettings                = "missing or invalid settings"
)

// ErrAlreadySyncing reports that another attempt holds the transaction.
var ErrAlreadySyncing = errors.New("transaction is already syncing")

// ErrAlreadyDone reports that the transaction reached success earlier.
var ErrAlreadyDone = errors.New("transaction is already synced")

type BadRequestError struct {
	Message string
}

func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{Message: message}
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("Bad request: %s", e.Message)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// FieldProblem names a settings field that is unset or no longer exists in the target ledger.
type FieldProblem struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

const (
	ProblemMissing       = "missing"
	ProblemStale         = "stale"
	ProblemNotConfigured = "not configured"
)

// ValidationError is a request rejected on its content. Retrying it cannot help.
type ValidationError struct {
	Message  string
	Problems []FieldProblem
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func NewSettingsError(problems []FieldProblem) *ValidationError {
	return &ValidationError{Message: ErrMissingSettings, Problems: problems}
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s (%s)", p.Field, p.Problem))
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, ", "))
}

type AuthError struct {
	Message string
}

func NewAuthError(message string) *AuthError {
	return &AuthError{Message: message}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

type RateLimitedError struct {
	Wait time.Duration
}

func NewRateLimitedError(wait time.Duration) *RateLimitedError {
	return &RateLimitedError{Wait: wait}
}

func (e *RateLimitedError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.Wait)
	}
	return "rate limited"
}

func (e *RateLimitedError) RetryAfter() time.Duration {
	return e.Wait
}

// TransientError is a failure expected to clear on its own: timeouts, 5xx, dropped connections.
type TransientError struct {
	Message string
	Err     error
}

func NewTransientError(message string, err error) *TransientError {
	return &TransientError{Message: message, Err: err}
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var transient *TransientError
	var limited *RateLimitedError
	switch {
	case err == nil:
		return false
	case As(err, &transient), As(err, &limited):
		return true
	case Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
