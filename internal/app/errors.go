package app

import (
	"errors"

	"github.com/goizzi/backoffice-service/internal/store"
)

var (
	// ErrNotConfigured means the document store was not initialised at startup.
	ErrNotConfigured = errors.New("document store is not configured")
	// ErrNotFound is re-exported so handlers do not depend on the store package.
	ErrNotFound = store.ErrNotFound
	// ErrStaffNotFound is returned when an ID token belongs to no active staff user.
	ErrStaffNotFound = errors.New("Staff record not found or inactive.")
	// ErrInvalidIDToken is returned when the ID token fails verification.
	ErrInvalidIDToken = errors.New("invalid id token")
	// ErrUnauthenticated is returned when a request carries no valid staff session.
	ErrUnauthenticated = errors.New("Unauthorized.")
	// ErrRateLimited is returned when a caller exceeded the sign-in attempt budget.
	ErrRateLimited = errors.New("Too many sign-in attempts. Try again later.")
)

// ValidationError describes a malformed or missing request field. Message is safe
// to return to the client.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
