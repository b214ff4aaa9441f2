// Package errors provides the standardized error taxonomy for sync-storage.
// Every failure surfaced by the core belongs to one of five kinds, each with
// a stable machine code used on the wire and in metrics:
//
//   - KindValidation   VALIDATION_ERROR
//   - KindUnauthorized UNAUTHORIZED
//   - KindNotFound     NOT_FOUND
//   - KindPrecondition PRECONDITION_FAILED
//   - KindInternal     INTERNAL_ERROR
//
// The package includes helper functions for consistent error wrapping
// ("component.method: action failed: %w"), classification predicates, and
// sentinel variables for common storage conditions. Internal diagnostics
// stay on the wrapped chain for logging; the public Message of a classified
// error is safe to return to clients.
package errors
