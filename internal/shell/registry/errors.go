package registry

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrOwnershipMismatch is returned when the registry is owned by an
	// account other than the sender.
	ErrOwnershipMismatch = errors.New("registry owner does not match sender")

	// ErrRegistrationRejected is returned when the registry refuses an entry.
	ErrRegistrationRejected = errors.New("registration rejected")

	// ErrInvalidKey is returned when a name cannot be encoded as a key.
	ErrInvalidKey = errors.New("invalid registry key")
)

// RegistryError carries the operation and key of a failed registry call.
type RegistryError struct {
	Op  string
	Key string
	Err error
}

func (e *RegistryError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("registry %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(op, key string, err error) *RegistryError {
	return &RegistryError{Op: op, Key: key, Err: err}
}
