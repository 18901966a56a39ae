// Package rpc implements the signing and transport capability over a node's
// JSON-RPC endpoint. Signing is delegated to the node, which must manage the
// sending account.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/shell/transaction"
)

var (
	_ transaction.Transport        = (*Client)(nil)
	_ transaction.Chain            = (*Client)(nil)
	_ transaction.SequenceReleaser = (*Client)(nil)
)

// =============================================================================
// Client
// =============================================================================

// Config holds configuration for the JSON-RPC client.
type Config struct {
	Endpoint            string
	Timeout             time.Duration
	PollInterval        time.Duration
	ConfirmationTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:            "http://localhost:8545",
		Timeout:             30 * time.Second,
		PollInterval:        time.Second,
		ConfirmationTimeout: 5 * time.Minute,
	}
}

// Client talks to one node endpoint.
type Client struct {
	rpc                 *gethrpc.Client
	eth                 *ethclient.Client
	pollInterval        time.Duration
	confirmationTimeout time.Duration
	logger              *slog.Logger

	mu     sync.Mutex
	nonces map[abi.Address]*sequence
}

// sequence is the nonce allocator state of one account.
type sequence struct {
	next uint64

	// released holds nonces below next handed back by failed submissions,
	// ascending. They are reused before next.
	released []uint64
}

// Dial connects to cfg.Endpoint. HTTP endpoints are not contacted until the
// first call.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	rc, err := gethrpc.DialOptions(ctx, cfg.Endpoint, gethrpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Endpoint, err)
	}
	return NewClient(rc, cfg, logger), nil
}

// NewClient wraps an established connection.
func NewClient(rc *gethrpc.Client, cfg Config, logger *slog.Logger) *Client {
	defaults := DefaultConfig()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.ConfirmationTimeout == 0 {
		cfg.ConfirmationTimeout = defaults.ConfirmationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		rpc:                 rc,
		eth:                 ethclient.NewClient(rc),
		pollInterval:        cfg.PollInterval,
		confirmationTimeout: cfg.ConfirmationTimeout,
		logger:              logger.With("component", "rpc_client"),
		nonces:              make(map[abi.Address]*sequence),
	}
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// callRequired invokes method and decodes a non-null result into result.
func (c *Client) callRequired(ctx context.Context, method string, result any, args ...any) error {
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, method, args...); err != nil {
		return wrapError(method, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: %s", ErrEmptyResult, method)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResult, method, err)
	}
	return nil
}

// wrapError turns node-side error objects into RPCError.
func wrapError(method string, err error) error {
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return fmt.Errorf("failed to send %s request: %w", method, err)
}

func toCallMsg(msg transaction.CallMsg) ethereum.CallMsg {
	return ethereum.CallMsg{From: msg.From, To: msg.To, Data: msg.Data}
}

// =============================================================================
// Chain
// =============================================================================

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, wrapError("eth_blockNumber", err)
	}
	return n, nil
}

// NetworkID returns the node's network identifier.
func (c *Client) NetworkID(ctx context.Context) (string, error) {
	id, err := c.eth.NetworkID(ctx)
	if err != nil {
		return "", wrapError("net_version", err)
	}
	return id.String(), nil
}

// =============================================================================
// Transport
// =============================================================================

// EstimateFee returns the gas limit the node estimates for msg.
func (c *Client) EstimateFee(ctx context.Context, msg transaction.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, toCallMsg(msg))
	if err != nil {
		return 0, wrapError("eth_estimateGas", err)
	}
	return gas, nil
}

// NextSequenceNumber hands out the next nonce for account. The pending
// transaction count is fetched once; later calls increment locally. Nonces
// handed back through ReleaseSequence are reused first, lowest first.
func (c *Client) NextSequenceNumber(ctx context.Context, account abi.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.nonces[account]
	if !ok {
		count, err := c.eth.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, wrapError("eth_getTransactionCount", err)
		}
		seq = &sequence{next: count}
		c.nonces[account] = seq
	}

	if len(seq.released) > 0 {
		nonce := seq.released[0]
		seq.released = seq.released[1:]
		return nonce, nil
	}
	nonce := seq.next
	seq.next++
	return nonce, nil
}

// ReleaseSequence hands back a nonce whose transaction never reached the
// node. Other outstanding nonces are untouched.
func (c *Client) ReleaseSequence(account abi.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.nonces[account]
	if !ok || nonce >= seq.next {
		return
	}
	i := sort.Search(len(seq.released), func(i int) bool { return seq.released[i] >= nonce })
	if i < len(seq.released) && seq.released[i] == nonce {
		return
	}
	seq.released = append(seq.released, 0)
	copy(seq.released[i+1:], seq.released[i:])
	seq.released[i] = nonce

	// Fold released nonces at the top back into next.
	for n := len(seq.released); n > 0 && seq.released[n-1]+1 == seq.next; n-- {
		seq.next--
		seq.released = seq.released[:n-1]
	}
	c.logger.Warn("sequence released", "account", account.Hex(), "nonce", nonce, "next", seq.next)
}

// signArgs is the transaction object accepted by eth_signTransaction.
type signArgs struct {
	From     abi.Address    `json:"from"`
	To       *abi.Address   `json:"to,omitempty"`
	Data     hexutil.Bytes  `json:"data"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice hexutil.Uint64 `json:"gasPrice"`
	Nonce    hexutil.Uint64 `json:"nonce"`
}

// Sign asks the node to sign params with the sending account.
func (c *Client) Sign(ctx context.Context, params transaction.TxParams) ([]byte, error) {
	args := signArgs{
		From:     params.From,
		To:       params.To,
		Data:     params.Data,
		Gas:      hexutil.Uint64(params.Gas),
		GasPrice: hexutil.Uint64(params.GasPrice),
		Nonce:    hexutil.Uint64(params.Nonce),
	}

	var out json.RawMessage
	if err := c.callRequired(ctx, "eth_signTransaction", &out, args); err != nil {
		return nil, err
	}

	// Nodes answer either with the raw hex or with {raw, tx}.
	var raw hexutil.Bytes
	if err := json.Unmarshal(out, &raw); err != nil {
		var signed struct {
			Raw hexutil.Bytes `json:"raw"`
		}
		if err := json.Unmarshal(out, &signed); err != nil || len(signed.Raw) == 0 {
			return nil, fmt.Errorf("%w: eth_signTransaction", ErrMalformedResult)
		}
		raw = signed.Raw
	}
	return raw, nil
}

// Submit broadcasts a signed transaction.
func (c *Client) Submit(ctx context.Context, signed []byte) (abi.Hash, error) {
	var txID abi.Hash
	if err := c.callRequired(ctx, "eth_sendRawTransaction", &txID, hexutil.Bytes(signed)); err != nil {
		return abi.Hash{}, err
	}
	return txID, nil
}

// AwaitConfirmation polls for the receipt of txID until it is available or
// the confirmation timeout elapses.
func (c *Client) AwaitConfirmation(ctx context.Context, txID abi.Hash, description string) (*transaction.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmationTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.receipt(ctx, txID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.expired(ctx, txID, description)
			}
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		c.logger.Debug("waiting for confirmation", "tx", txID.Hex(), "description", description)

		select {
		case <-ctx.Done():
			return nil, c.expired(ctx, txID, description)
		case <-ticker.C:
		}
	}
}

// expired reports why polling stopped: the confirmation timeout, or the
// caller's cancellation.
func (c *Client) expired(ctx context.Context, txID abi.Hash, description string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s (tx %s)", ErrConfirmationTimeout, description, txID.Hex())
	}
	return fmt.Errorf("%s (tx %s): %w", description, txID.Hex(), ctx.Err())
}

// receipt returns nil while the transaction is pending.
func (c *Client) receipt(ctx context.Context, txID abi.Hash) (*transaction.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, txID)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("eth_getTransactionReceipt", err)
	}

	receipt := &transaction.Receipt{
		TxHash:          txID,
		ContractAddress: r.ContractAddress,
		Status:          r.Status,
	}
	// Pre-byzantium receipts carry a state root instead of a status.
	if len(r.PostState) > 0 {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	return receipt, nil
}

// Call executes a read-only call against the latest block.
func (c *Client) Call(ctx context.Context, msg transaction.CallMsg) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, toCallMsg(msg), nil)
	if err != nil {
		return nil, wrapError("eth_call", err)
	}
	return out, nil
}
