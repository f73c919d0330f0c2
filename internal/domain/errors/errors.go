package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrBadRequest    = errors.New("bad request")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")

	// Routing and orchestration
	ErrConfiguration      = errors.New("gateway configuration error")
	ErrNoEligibleGateway  = errors.New("no eligible gateway")
	ErrNoHealthyGateway   = errors.New("no healthy gateway")
	ErrGatewayCall        = errors.New("gateway call failed")
	ErrAlreadyProcessed   = errors.New("transaction already processed")
	ErrStatusConflict     = errors.New("transaction status changed concurrently")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownGateway     = errors.New("unknown gateway")
	ErrRefundNotAllowed   = errors.New("refund not allowed")
	ErrRefundExceedsTotal = errors.New("refund exceeds captured amount")

	// Webhooks
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrTransactionNotFound = errors.New("transaction not found for webhook")
	ErrUnsupportedEvent    = errors.New("unsupported webhook event")
)

const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeNoEligibleGateway   = "NO_ELIGIBLE_GATEWAY"
	CodeNoHealthyGateway    = "NO_HEALTHY_GATEWAY"
	CodeGatewayError        = "GATEWAY_ERROR"
	CodeConfigurationError  = "CONFIGURATION_ERROR"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
)

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NotFound(message string) *AppError {
	return NewAppError(http.StatusNotFound, CodeNotFound, message, ErrNotFound)
}

func Conflict(message string) *AppError {
	return NewAppError(http.StatusConflict, CodeConflict, message, ErrAlreadyExists)
}

func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, CodeInvalidInput, message, ErrInvalidInput)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(http.StatusForbidden, CodeForbidden, message, ErrForbidden)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, "internal server error", err)
}

func InternalServerError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, message, nil)
}

// NewError creates a new error with a custom message wrapping an existing error
func NewError(message string, err error) error {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: message,
		Err:     err,
	}
}

// GatewayCallError describes a failed call to an external gateway. It unwraps to
// ErrGatewayCall so callers can branch with errors.Is.
type GatewayCallError struct {
	Gateway      string
	ProviderCode string
	Timeout      bool
	Err          error
}

func (e *GatewayCallError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("gateway %s: call timed out", e.Gateway)
	case e.ProviderCode != "" && e.Err != nil:
		return fmt.Sprintf("gateway %s: %s: %v", e.Gateway, e.ProviderCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("gateway %s: %v", e.Gateway, e.Err)
	default:
		return fmt.Sprintf("gateway %s: call failed", e.Gateway)
	}
}

func (e *GatewayCallError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGatewayCall}
	}
	return []error{ErrGatewayCall, e.Err}
}

// FromDomain maps a domain sentinel to the AppError the HTTP layer renders.
// Errors that already are AppErrors are returned unchanged.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return NewAppError(http.StatusBadRequest, CodeInvalidInput, err.Error(), err)
	case errors.Is(err, ErrTransactionNotFound):
		return NewAppError(http.StatusNotFound, CodeTransactionNotFound, err.Error(), err)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownGateway):
		return NewAppError(http.StatusNotFound, CodeNotFound, err.Error(), err)
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrStatusConflict):
		return NewAppError(http.StatusConflict, CodeAlreadyProcessed, err.Error(), err)
	case errors.Is(err, ErrAlreadyExists):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrRefundNotAllowed), errors.Is(err, ErrRefundExceedsTotal):
		return NewAppError(http.StatusConflict, CodeConflict, err.Error(), err)
	case errors.Is(err, ErrUnauthorized):
		return NewAppError(http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
	case errors.Is(err, ErrInvalidSignature):
		return NewAppError(http.StatusUnauthorized, CodeInvalidSignature, err.Error(), err)
	case errors.Is(err, ErrNoEligibleGateway):
		return NewAppError(http.StatusUnprocessableEntity, CodeNoEligibleGateway, err.Error(), err)
	case errors.Is(err, ErrNoHealthyGateway):
		return NewAppError(http.StatusServiceUnavailable, CodeNoHealthyGateway, err.Error(), err)
	case errors.Is(err, ErrGatewayCall):
		return NewAppError(http.StatusBadGateway, CodeGatewayError, err.Error(), err)
	case errors.Is(err, ErrConfiguration):
		return NewAppError(http.StatusInternalServerError, CodeConfigurationError, err.Error(), err)
	default:
		return InternalError(err)
	}
}
