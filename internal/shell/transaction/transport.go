// Package transaction builds deployment payloads and drives them through the
// signing/transport capability until they are confirmed.
package transaction

import (
	"context"

	"github.com/artpar/deployer/internal/core/abi"
)

// =============================================================================
// Transport Interface
// =============================================================================

// CallMsg is a read-only call or a fee estimation request.
type CallMsg struct {
	From abi.Address
	To   *abi.Address // nil for deployments
	Data []byte
}

// TxParams is everything needed to sign one transaction.
type TxParams struct {
	From     abi.Address
	To       *abi.Address
	Data     []byte
	Gas      uint64
	GasPrice uint64
	Nonce    uint64
}

// Receipt is the confirmed inclusion of a transaction.
type Receipt struct {
	TxHash          abi.Hash
	ContractAddress abi.Address
	Status          uint64
	BlockNumber     uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// Transport is the signing and transport capability. Implementations must
// hand out strictly increasing, gap-free sequence numbers per account even
// when called concurrently.
type Transport interface {
	// EstimateFee returns the gas limit for a payload.
	EstimateFee(ctx context.Context, msg CallMsg) (uint64, error)

	// NextSequenceNumber allocates the next sequence number for account.
	NextSequenceNumber(ctx context.Context, account abi.Address) (uint64, error)

	// Sign produces the signed payload for params.
	Sign(ctx context.Context, params TxParams) ([]byte, error)

	// Submit sends a signed payload and returns its transaction id.
	Submit(ctx context.Context, signed []byte) (abi.Hash, error)

	// AwaitConfirmation blocks until txID is included. description is used
	// in timeout and failure messages.
	AwaitConfirmation(ctx context.Context, txID abi.Hash, description string) (*Receipt, error)

	// Call executes a read-only call against the latest state.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)
}

// SequenceReleaser is implemented by transports that can take back a
// sequence number whose submission never reached the ledger, so the number
// is reused instead of leaving a gap.
type SequenceReleaser interface {
	ReleaseSequence(account abi.Address, nonce uint64)
}

// Chain exposes the ledger facts the orchestrator records.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	NetworkID(ctx context.Context) (string, error)
}
