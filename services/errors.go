package services

import (
	"errors"
	"fmt"
)

// ErrorType classifies a DomainError for transport-level mapping.
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
)

// DomainError is the error currency of the service layer. Handlers never
// inspect causes directly, they map the Type.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// NewDomainError builds a DomainError around an optional cause.
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches by Type, so errors.Is(err, ErrConversationNotFound) holds for
// any not_found error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Type == t.Type
}

// WithDetail attaches a key for the HTTP error body. Call it on freshly
// constructed errors only, never on the shared sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

var (
	ErrConversationNotFound = NewDomainError(ErrorTypeNotFound, "conversation not found", nil)
	ErrMessageNotFound      = NewDomainError(ErrorTypeNotFound, "message not found", nil)

	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyQuestion       = NewDomainError(ErrorTypeValidation, "question cannot be empty", nil)
	ErrNotAssistantMessage = NewDomainError(ErrorTypeValidation, "only assistant messages can be regenerated", nil)
	ErrNoTriggeringMessage = NewDomainError(ErrorTypeValidation, "no user message precedes the assistant message", nil)

	ErrRateLimitExceeded = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)

	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	ErrEmbeddingUnavailable  = NewDomainError(ErrorTypeExternal, "embedding provider unavailable", nil)
	ErrRetrievalUnavailable  = NewDomainError(ErrorTypeExternal, "vector index unavailable", nil)
	ErrGenerationUnavailable = NewDomainError(ErrorTypeExternal, "generation provider unavailable", nil)
	ErrGenerationRateLimited = NewDomainError(ErrorTypeExternal, "generation provider rate limited", nil)
)

func asDomain(err error) (*DomainError, bool) {
	var domainErr *DomainError
	ok := errors.As(err, &domainErr)
	return domainErr, ok
}

func hasType(err error, t ErrorType) bool {
	domainErr, ok := asDomain(err)
	return ok && domainErr.Type == t
}

// IsNotFoundError reports whether err is a not_found domain error.
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError reports whether err is a validation domain error.
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsRateLimitError reports whether err is a rate_limit domain error.
func IsRateLimitError(err error) bool { return hasType(err, ErrorTypeRateLimit) }

// IsInternalError reports whether err is an internal domain error.
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// IsExternalError reports whether err is an external provider domain error.
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// GetErrorType returns the classification of err, or "" for non-domain errors.
func GetErrorType(err error) ErrorType {
	if domainErr, ok := asDomain(err); ok {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the detail map of err, or nil for non-domain errors.
func GetErrorDetails(err error) map[string]interface{} {
	if domainErr, ok := asDomain(err); ok {
		return domainErr.Details
	}
	return nil
}

// WrapError classifies err under the given type with added context.
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal classifies err as internal with added context.
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal classifies err as an external provider failure with added context.
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
