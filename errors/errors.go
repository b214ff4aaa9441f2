package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire mapping and handling purposes.
type Kind int

const (
	// KindInternal represents unexpected backend or driver failures.
	KindInternal Kind = iota
	// KindValidation represents errors due to invalid caller input.
	KindValidation
	// KindUnauthorized represents missing or rejected credentials.
	KindUnauthorized
	// KindNotFound represents a requested item that does not exist or has expired.
	KindNotFound
	// KindPrecondition represents a failed If-Match precondition.
	KindPrecondition
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code returns the stable machine code carried on the wire.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindPrecondition:
		return "PRECONDITION_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

// Standard error variables for common storage conditions
var (
	// Precondition errors
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrRevisionConflict   = errors.New("concurrent modification detected")
	ErrRetryBudgetSpent   = errors.New("compare-and-swap retry budget exhausted")

	// Validation errors
	ErrKeyRequired    = errors.New("key must not be empty")
	ErrKeyTooLong     = errors.New("key exceeds maximum length")
	ErrValueTooLarge  = errors.New("value exceeds maximum size")
	ErrBatchEmpty     = errors.New("batch must not be empty")
	ErrBatchTooLarge  = errors.New("batch exceeds maximum size")
	ErrInvalidTTL     = errors.New("ttlSeconds must be a positive integer")
	ErrInvalidIfMatch = errors.New("If-Match must be a positive integer version")
	ErrInvalidCursor  = errors.New("cursor is not a valid continuation token")

	// Lookup errors
	ErrItemNotFound = errors.New("item not found")

	// Backend errors
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrStoreClosed        = errors.New("store is closed")
)

// Error wraps an underlying error with its kind and a client-safe message.
// The wrapped Err carries internal diagnostics and is never rendered to
// clients; Message is what the HTTP edge may expose.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// PublicMessage returns the client-safe message for an error. Errors that
// carry no classified message get a generic message for their kind
// ("internal error" for unrecognised errors), so backend diagnostics are
// never exposed.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch KindOf(err) {
	case KindValidation:
		return "invalid request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindPrecondition:
		return "precondition failed"
	default:
		return "internal error"
	}
}

// New creates a classified error with a client-safe message.
func New(kind Kind, component, operation, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Err:       fmt.Errorf("%s.%s: %s", component, operation, message),
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// wrapKind wraps an error with context and a kind. The action description
// becomes the client-safe message; the wrapped chain keeps the diagnostics.
func wrapKind(kind Kind, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:      kind,
		Message:   action,
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// WrapValidation wraps an error as a validation failure with context.
func WrapValidation(err error, component, method, action string) error {
	return wrapKind(KindValidation, err, component, method, action)
}

// WrapUnauthorized wraps an error as an authorization failure with context.
func WrapUnauthorized(err error, component, method, action string) error {
	return wrapKind(KindUnauthorized, err, component, method, action)
}

// WrapNotFound wraps an error as a not-found failure with context.
func WrapNotFound(err error, component, method, action string) error {
	return wrapKind(KindNotFound, err, component, method, action)
}

// WrapPrecondition wraps an error as a precondition failure with context.
func WrapPrecondition(err error, component, method, action string) error {
	return wrapKind(KindPrecondition, err, component, method, action)
}

// WrapInternal wraps an error as an internal failure with context. The
// original diagnostic is retained on the chain for logging but the public
// message stays generic.
func WrapInternal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:      KindInternal,
		Message:   "internal error",
		Err:       Wrap(err, component, method, action),
		Component: component,
		Operation: method,
	}
}

// KindOf returns the kind of an error. Classified errors report their own
// kind; known sentinels classify by condition; everything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	switch {
	case errors.Is(err, ErrPreconditionFailed),
		errors.Is(err, ErrRevisionConflict),
		errors.Is(err, ErrRetryBudgetSpent):
		return KindPrecondition
	case errors.Is(err, ErrItemNotFound):
		return KindNotFound
	case errors.Is(err, ErrKeyRequired),
		errors.Is(err, ErrKeyTooLong),
		errors.Is(err, ErrValueTooLarge),
		errors.Is(err, ErrBatchEmpty),
		errors.Is(err, ErrBatchTooLarge),
		errors.Is(err, ErrInvalidTTL),
		errors.Is(err, ErrInvalidCursor):
		return KindValidation
	case errors.Is(err, ErrInvalidIfMatch):
		return KindPrecondition
	}

	return KindInternal
}

// IsValidation checks if an error is a validation failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// IsUnauthorized checks if an error is an authorization failure.
func IsUnauthorized(err error) bool {
	return err != nil && KindOf(err) == KindUnauthorized
}

// IsNotFound checks if an error is a not-found failure.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsPrecondition checks if an error is a precondition failure.
func IsPrecondition(err error) bool {
	return err != nil && KindOf(err) == KindPrecondition
}

// IsInternal checks if an error is an internal failure.
func IsInternal(err error) bool {
	return err != nil && KindOf(err) == KindInternal
}

// Code returns the stable machine code for an error.
func Code(err error) string {
	return KindOf(err).Code()
}
