// Package artifact models deployable compiled units and the immutable set
// they are loaded into.
//
// This is part of the functional core: the only mutation is the one-time
// assignment of an artifact's address once it has been uploaded.
package artifact

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a named artifact is not in the set.
	ErrNotFound = errors.New("artifact not found")

	// ErrDuplicateArtifact is returned when two artifacts share a name.
	ErrDuplicateArtifact = errors.New("duplicate artifact name")

	// ErrNotYetUploaded is returned when an operation needs an address that
	// has not been assigned.
	ErrNotYetUploaded = errors.New("artifact has not yet been uploaded")

	// ErrAddressAlreadySet is returned when an address would be reassigned.
	ErrAddressAlreadySet = errors.New("artifact address already set")
)

// ArtifactError wraps errors with the artifact they concern.
type ArtifactError struct {
	Op   string
	Name string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// NewArtifactError creates a new ArtifactError.
func NewArtifactError(op, name string, err error) *ArtifactError {
	return &ArtifactError{Op: op, Name: name, Err: err}
}
