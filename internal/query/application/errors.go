package application

import (
	"fmt"

	telemetry "scalesync/internal/telemetry/domain"
)

// ValidationError rejects a query before storage is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("query: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, telemetry.ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return telemetry.ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
