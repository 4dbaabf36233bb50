package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound record not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate duplicate record
	ErrDuplicate = errors.New("duplicate record")

	// ErrUsesExhausted a promo code has no use left to reserve
	ErrUsesExhausted = errors.New("code uses exhausted")

	// ErrInvalidInput invalid input data
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated the caller has no valid session
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrSessionExpired the caller's credential has expired; re-login fixes it
	ErrSessionExpired = errors.New("session expired")

	// ErrForbidden the caller is authenticated but lacks the privilege
	ErrForbidden = errors.New("forbidden")

	// ErrTransient a retryable transport failure that survived all attempts
	ErrTransient = errors.New("transient processor error")

	// ErrExternalServiceUnavailable the processor rejected or failed a call
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
)

// RedemptionReason is a machine-readable cause of a rejected redemption
type RedemptionReason string

const (
	ReasonCodeNotFound     RedemptionReason = "code_not_found"
	ReasonCodeInactive     RedemptionReason = "code_inactive"
	ReasonCodeExpired      RedemptionReason = "code_expired"
	ReasonCodeExhausted    RedemptionReason = "code_exhausted"
	ReasonAlreadyRedeemed  RedemptionReason = "already_redeemed"
	ReasonInvalidCodeSetup RedemptionReason = "invalid_code"
)

var redemptionMessages = map[RedemptionReason]string{
	ReasonCodeNotFound:     "This code does not exist.",
	ReasonCodeInactive:     "This code is no longer active.",
	ReasonCodeExpired:      "This code has expired.",
	ReasonCodeExhausted:    "This code has reached its maximum number of uses.",
	ReasonAlreadyRedeemed:  "You have already redeemed this code.",
	ReasonInvalidCodeSetup: "This code cannot be redeemed.",
}

// RedemptionError is a business-rule rejection of a code redemption
type RedemptionError struct {
	Reason RedemptionReason
	Code   string
}

// Error implements error
func (e *RedemptionError) Error() string {
	return fmt.Sprintf("redemption of %q rejected: %s", e.Code, e.Reason)
}

// Message is the user-readable explanation
func (e *RedemptionError) Message() string {
	if msg, ok := redemptionMessages[e.Reason]; ok {
		return msg
	}
	return "This code cannot be redeemed."
}

// NewRedemptionError creates a new RedemptionError
func NewRedemptionError(reason RedemptionReason, code string) *RedemptionError {
	return &RedemptionError{Reason: reason, Code: code}
}

// RedemptionReasonOf extracts the reason from err, if it is a RedemptionError
func RedemptionReasonOf(err error) (RedemptionReason, bool) {
	var rerr *RedemptionError
	if errors.As(err, &rerr) {
		return rerr.Reason, true
	}
	return "", false
}

// ExternalServiceError wraps a failed processor call
type ExternalServiceError struct {
	Service     string
	Operation   string
	Code        string
	StatusCode  int
	OriginalErr error
}

// Error implements error
func (e *ExternalServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s failed [%s]: %v", e.Service, e.Operation, e.Code, e.OriginalErr)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.OriginalErr)
}

// Unwrap returns the original error
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is lets callers match ErrExternalServiceUnavailable
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalServiceUnavailable
}

// NewExternalServiceError creates a new ExternalServiceError
func NewExternalServiceError(service, operation, code string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Operation:   operation,
		Code:        code,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// NotFoundError represents a missing entity
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// DuplicateError represents a uniqueness violation
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error implements error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Entity, e.Field, e.Value)
}

// Is matches ErrDuplicate
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError creates a new DuplicateError
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{Entity: entity, Field: field, Value: value}
}
