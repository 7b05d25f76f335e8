package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the bot's failure taxonomy.
const (
	CodeConfigMissing  = "CONFIG_MISSING"
	CodeTicketNotFound = "TICKET_NOT_FOUND"
	CodeDelivery       = "DELIVERY_FAILURE"
	CodePersistence    = "PERSISTENCE_IO"
	CodeAccessDenied   = "ACCESS_DENIED"
	CodeValidation     = "VALIDATION_FAILED"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInternal       = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewConfigMissing reports fatal startup configuration gaps.
func NewConfigMissing(what string) error {
	return NewDomainError(CodeConfigMissing, fmt.Sprintf("missing configuration: %s", what), http.StatusInternalServerError, nil)
}

// NewTicketNotFound reports a missing or stale ticket id.
func NewTicketNotFound(id string) error {
	return NewDomainError(CodeTicketNotFound, fmt.Sprintf("ticket %s not found", id), http.StatusNotFound, map[string]any{"ticket_id": id})
}

// NewDeliveryFailure wraps an outbound send error.
func NewDeliveryFailure(err error) error {
	return &DomainError{
		Code:       CodeDelivery,
		Message:    "message delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPersistenceFailure wraps a store write/read error.
func NewPersistenceFailure(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "persistence failure",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAccessDenied reports an admin-gated action attempted by a
// non-admin sender.
func NewAccessDenied() error {
	return NewDomainError(CodeAccessDenied, "access denied", http.StatusForbidden, nil)
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound reports whether err is a ticket-not-found error.
func IsNotFound(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == CodeTicketNotFound
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
