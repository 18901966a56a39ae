package rpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/deployer/internal/shell/transaction"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrConfirmationTimeout is returned when a transaction is not included
	// within the confirmation timeout.
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")

	// ErrEmptyResult is returned when a method that must produce a value
	// returned null.
	ErrEmptyResult = errors.New("empty rpc result")

	// ErrMalformedResult is returned when a result cannot be decoded.
	ErrMalformedResult = errors.New("malformed rpc result")
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Is reports node-side reverts as transaction.ErrReverted.
func (e *RPCError) Is(target error) bool {
	return target == transaction.ErrReverted && strings.Contains(strings.ToLower(e.Message), "revert")
}
