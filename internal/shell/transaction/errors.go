package transaction

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrTransportFailure marks every error that came from the transport.
	ErrTransportFailure = errors.New("transport failure")

	// ErrReverted is returned when a confirmed transaction reverted.
	ErrReverted = errors.New("transaction reverted")

	// ErrNoContractAddress is returned when a deployment receipt carries no
	// contract address.
	ErrNoContractAddress = errors.New("receipt has no contract address")
)

// Stages of a submission, used in TxError.
const (
	StagePayload    = "encode payload"
	StageEstimate   = "estimate fee"
	StageSequence   = "sequence number"
	StageSign       = "sign"
	StageSubmit     = "submit"
	StageConfirm    = "await confirmation"
	StageCall       = "call"
	StageUnexpected = "receipt"
)

// TxError tags a transport failure with the artifact and the stage that
// failed. errors.Is(err, ErrTransportFailure) holds for every TxError; the
// transport's own error is still reachable through Unwrap.
type TxError struct {
	Artifact    string
	Stage       string
	Description string
	Err         error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s (%s): %s: %v", e.Description, e.Artifact, e.Stage, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// Is makes every TxError match ErrTransportFailure.
func (e *TxError) Is(target error) bool {
	return target == ErrTransportFailure
}

func newTxError(artifact, stage, description string, err error) *TxError {
	return &TxError{
		Artifact:    artifact,
		Stage:       stage,
		Description: description,
		Err:         err,
	}
}
