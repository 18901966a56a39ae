package deployment

import (
	"fmt"

	"github.com/artpar/deployer/internal/core/abi"
)

// =============================================================================
// Per-artifact State Machine
// =============================================================================

// State is the deployment state of one logical artifact within a run.
type State string

const (
	StatePending     State = "pending"
	StateUploaded    State = "uploaded"
	StateRegistered  State = "registered"
	StateSkipped     State = "skipped"
	StateInitialized State = "initialized"
	StateWhitelisted State = "whitelisted"
)

var transitions = map[State][]State{
	StatePending:     {StateUploaded, StateSkipped},
	StateUploaded:    {StateRegistered},
	StateRegistered:  {StateInitialized, StateWhitelisted},
	StateSkipped:     {StateInitialized, StateWhitelisted},
	StateInitialized: {StateWhitelisted},
}

// ValidTransition reports whether from -> to is allowed.
//
// Valid paths:
//   - pending → uploaded → registered → (initialized) → (whitelisted)
//   - pending → skipped → (initialized) → (whitelisted)
//
// Skipped is terminal for the upload phase only.
func ValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition for a disallowed move.
func CheckTransition(name string, from, to State) error {
	if ValidTransition(from, to) {
		return nil
	}
	return NewPlanError(name, fmt.Sprintf("%s -> %s", from, to), ErrInvalidTransition)
}

// =============================================================================
// Upload Decisions
// =============================================================================

// UploadDecision is the result of the idempotency check for one item.
type UploadDecision struct {
	Skip   bool
	Reason string
}

// DecideUpload decides whether an item can reuse its registered address.
// Skipping requires a reused registry and a stored content hash equal to
// the candidate's; a never-registered key stores the zero hash, which no
// real bytecode digest equals.
//
// Example:
//
//	d := DecideUpload(true, details.ContentHash, artifact.ContentHash(bytecode))
//	if d.Skip { reuse previously registered address }
func DecideUpload(existingRegistry bool, registered, candidate abi.Hash) UploadDecision {
	switch {
	case !existingRegistry:
		return UploadDecision{Skip: false, Reason: "fresh registry"}
	case abi.IsZeroHash(registered):
		return UploadDecision{Skip: false, Reason: "never registered"}
	case registered != candidate:
		return UploadDecision{Skip: false, Reason: "content hash changed"}
	default:
		return UploadDecision{Skip: true, Reason: "content hash unchanged"}
	}
}
