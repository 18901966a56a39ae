package abi

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrMissingConstructor is returned when constructor arguments are supplied
	// for an artifact whose interface declares no constructor.
	ErrMissingConstructor = errors.New("interface does not declare a constructor")

	// ErrArgumentCount is returned when the number of arguments does not match
	// the constructor inputs.
	ErrArgumentCount = errors.New("argument count does not match constructor inputs")

	// ErrUnsupportedType is returned for parameter types outside the static subset.
	ErrUnsupportedType = errors.New("unsupported parameter type")

	// ErrInvalidValue is returned when an argument cannot be parsed for its type.
	ErrInvalidValue = errors.New("invalid value for parameter type")

	// ErrShortData is returned when return data is too short to decode a word.
	ErrShortData = errors.New("return data too short")

	// ErrNameTooLong is returned when a name does not fit a bytes32 key.
	ErrNameTooLong = errors.New("name does not fit in 32 bytes")
)

// EncodeError wraps errors with the parameter that failed to encode.
type EncodeError struct {
	Index   int
	Type    string
	Value   string
	Message string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("argument %d (%s) %q: %s", e.Index, e.Type, e.Value, e.Message)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
