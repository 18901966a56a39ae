package transaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/core/artifact"
)

// =============================================================================
// Builder
// =============================================================================

// Config holds the sender settings for a Builder.
type Config struct {
	From     abi.Address
	GasPrice uint64
}

// Invoker submits state-changing calls and read-only calls against
// uploaded artifacts. *Builder implements it.
type Invoker interface {
	Invoke(ctx context.Context, to abi.Address, data []byte, label, description string) (*Receipt, error)
	Read(ctx context.Context, to abi.Address, data []byte, label string) ([]byte, error)
}

var _ Invoker = (*Builder)(nil)

// Builder constructs deployment payloads and invocations and submits them
// through a Transport, waiting for confirmation.
type Builder struct {
	transport Transport
	from      abi.Address
	gasPrice  uint64
	logger    *slog.Logger
}

// NewBuilder creates a new builder.
func NewBuilder(transport Transport, cfg Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		transport: transport,
		from:      cfg.From,
		gasPrice:  cfg.GasPrice,
		logger:    logger.With("component", "transaction_builder"),
	}
}

// From returns the sending account.
func (b *Builder) From() abi.Address {
	return b.from
}

// Payload concatenates the artifact's bytecode with its encoded constructor
// arguments.
func Payload(a *artifact.Artifact, args []string) ([]byte, error) {
	encoded, err := abi.EncodeConstructorArgs(a.ABI, args)
	if err != nil {
		return nil, artifact.NewArtifactError("encode constructor", a.Name, err)
	}
	payload := make([]byte, 0, len(a.Bytecode)+len(encoded))
	payload = append(payload, a.Bytecode...)
	return append(payload, encoded...), nil
}

// DeployArtifact uploads a new instance of the artifact and returns the
// address assigned on confirmed inclusion. It does not record the address
// on the artifact.
func (b *Builder) DeployArtifact(ctx context.Context, a *artifact.Artifact, args ...string) (abi.Address, error) {
	payload, err := Payload(a, args)
	if err != nil {
		return abi.ZeroAddress, err
	}

	description := "Uploading " + a.Name
	receipt, err := b.send(ctx, nil, payload, a.Name, description)
	if err != nil {
		return abi.ZeroAddress, err
	}
	if abi.IsZeroAddress(receipt.ContractAddress) {
		return abi.ZeroAddress, newTxError(a.Name, StageUnexpected, description, ErrNoContractAddress)
	}

	b.logger.Info("uploaded artifact",
		"artifact", a.Name,
		"address", receipt.ContractAddress.Hex(),
		"tx", receipt.TxHash.Hex(),
	)
	return receipt.ContractAddress, nil
}

// Invoke submits a state-changing call to an uploaded artifact. label names
// the target in errors and logs.
func (b *Builder) Invoke(ctx context.Context, to abi.Address, data []byte, label, description string) (*Receipt, error) {
	return b.send(ctx, &to, data, label, description)
}

// Read executes a read-only call.
func (b *Builder) Read(ctx context.Context, to abi.Address, data []byte, label string) ([]byte, error) {
	out, err := b.transport.Call(ctx, CallMsg{From: b.from, To: &to, Data: data})
	if err != nil {
		return nil, newTxError(label, StageCall, "Reading "+label, err)
	}
	return out, nil
}

// send runs one transaction through estimate, sequence, sign, submit and
// confirmation.
func (b *Builder) send(ctx context.Context, to *abi.Address, data []byte, label, description string) (*Receipt, error) {
	gas, err := b.transport.EstimateFee(ctx, CallMsg{From: b.from, To: to, Data: data})
	if err != nil {
		return nil, newTxError(label, StageEstimate, description, err)
	}

	nonce, err := b.transport.NextSequenceNumber(ctx, b.from)
	if err != nil {
		return nil, newTxError(label, StageSequence, description, err)
	}

	signed, err := b.transport.Sign(ctx, TxParams{
		From:     b.from,
		To:       to,
		Data:     data,
		Gas:      gas,
		GasPrice: b.gasPrice,
		Nonce:    nonce,
	})
	if err != nil {
		b.releaseSequence(nonce)
		return nil, newTxError(label, StageSign, description, err)
	}

	b.logger.Info("submitting transaction",
		"artifact", label,
		"description", description,
		"nonce", nonce,
		"gas", gas,
		"gas_price", b.gasPrice,
	)

	txID, err := b.transport.Submit(ctx, signed)
	if err != nil {
		b.releaseSequence(nonce)
		return nil, newTxError(label, StageSubmit, description, err)
	}

	receipt, err := b.transport.AwaitConfirmation(ctx, txID, description)
	if err != nil {
		return nil, newTxError(label, StageConfirm, description, err)
	}
	if !receipt.Succeeded() {
		return nil, newTxError(label, StageConfirm, description, fmt.Errorf("%w: tx %s", ErrReverted, txID.Hex()))
	}
	return receipt, nil
}

func (b *Builder) releaseSequence(nonce uint64) {
	if r, ok := b.transport.(SequenceReleaser); ok {
		r.ReleaseSequence(b.from, nonce)
	}
}
