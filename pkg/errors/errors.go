package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carry
// structured context (amounts, existing record ids) for client-side messaging.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so Clone/WithDetails copies still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined transport-level errors.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid username or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Business-rule violations. Always explicit and caller-addressable.
var (
	ErrAlreadyExists          = New("ALREADY_EXISTS", http.StatusConflict, "member already onboarded for this registry key")
	ErrNotFoundInRegistry     = New("NOT_FOUND_IN_REGISTRY", http.StatusNotFound, "student not found in external registry")
	ErrNoQualifications       = New("NO_QUALIFICATIONS", http.StatusUnprocessableEntity, "registry transcript holds no usable qualification")
	ErrInvalidMobileFormat    = New("INVALID_MOBILE_FORMAT", http.StatusBadRequest, "mobile number must start with a digit or '+'")
	ErrInsufficientBalance    = New("INSUFFICIENT_BALANCE", http.StatusUnprocessableEntity, "wallet balance is insufficient")
	ErrNegativeDeduction      = New("NEGATIVE_DEDUCTION", http.StatusBadRequest, "deduction amount must be positive")
	ErrDuplicateEducation     = New("DUPLICATE_EDUCATION", http.StatusConflict, "education entry already exists")
	ErrDuplicateExperience    = New("DUPLICATE_EXPERIENCE", http.StatusConflict, "experience entry already exists")
	ErrAlreadyActive          = New("ALREADY_ACTIVE", http.StatusConflict, "member is already active")
	ErrAlreadyBanned          = New("ALREADY_BANNED", http.StatusConflict, "member is already banned")
	ErrInvalidTransition      = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrAlreadyRegistered      = New("ALREADY_REGISTERED", http.StatusConflict, "member already registered for this resource")
	ErrDuplicateSubscription  = New("DUPLICATE_SUBSCRIPTION", http.StatusConflict, "member already subscribed to this timeslot")
	ErrTimeOverlapDetected    = New("TIME_OVERLAP_DETECTED", http.StatusConflict, "requested interval overlaps an existing booking")
	ErrTimeslotFull           = New("TIMESLOT_FULL", http.StatusConflict, "no capacity left on this resource")
	ErrMembershipNotActive    = New("MEMBERSHIP_NOT_ACTIVE", http.StatusForbidden, "membership must be active")
	ErrDuplicateSubmission    = New("DUPLICATE_SUBMISSION", http.StatusConflict, "a request with this idempotency key already exists")
	ErrMissingDeliveryAddress = New("MISSING_DELIVERY_ADDRESS", http.StatusBadRequest, "home delivery requires an address")
	ErrMissingTargetBranch    = New("MISSING_TARGET_BRANCH", http.StatusBadRequest, "branch pickup requires a target branch")
	ErrAlreadyCancelled       = New("ALREADY_CANCELLED", http.StatusConflict, "already cancelled")
	ErrAlreadyRefunded        = New("ALREADY_REFUNDED", http.StatusConflict, "wallet draw already refunded")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured context.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
