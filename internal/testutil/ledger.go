// Package testutil provides an in-process fake ledger for exercising the
// transaction, registry and orchestration layers without a node.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/shell/transaction"
)

var (
	_ transaction.Transport = (*Ledger)(nil)
	_ transaction.Chain     = (*Ledger)(nil)
)

// ErrRevert is returned by read-only calls that revert.
var ErrRevert = fmt.Errorf("%w: fake ledger", transaction.ErrReverted)

// =============================================================================
// Bytecode
// =============================================================================

var codeMarker = []byte{0xfe, 'L'}

// Bytecode returns fake bytecode the ledger recognises as artifact name.
// Different revisions produce different content hashes.
func Bytecode(name, revision string) []byte {
	out := append([]byte{}, codeMarker...)
	out = append(out, byte(len(name)))
	out = append(out, name...)
	out = append(out, byte(len(revision)))
	return append(out, revision...)
}

// parseCode splits a deployment payload into artifact name, revision and
// constructor arguments.
func parseCode(payload []byte) (name, revision string, args []byte, ok bool) {
	if !bytes.HasPrefix(payload, codeMarker) || len(payload) < 3 {
		return "", "", nil, false
	}
	rest := payload[len(codeMarker):]
	n := int(rest[0])
	if len(rest) < 1+n+1 {
		return "", "", nil, false
	}
	name = string(rest[1 : 1+n])
	rest = rest[1+n:]
	m := int(rest[0])
	if len(rest) < 1+m {
		return "", "", nil, false
	}
	return name, string(rest[1 : 1+m]), rest[1+m:], true
}

// =============================================================================
// Contracts
// =============================================================================

// Registration is one registry entry.
type Registration struct {
	Address     abi.Address
	Provenance  [20]byte
	ContentHash abi.Hash
}

// Contract is an uploaded artifact instance and its emulated storage.
type Contract struct {
	Name       string
	Revision   string
	Address    abi.Address
	Creator    abi.Address
	Controller abi.Address

	// Registry storage.
	Registrations map[[32]byte]Registration
	Whitelist     map[abi.Address]bool

	// Proxy constructor arguments.
	ProxyController abi.Address
	ProxyKey        [32]byte

	Timestamp *big.Int
}

// Deployment records one upload.
type Deployment struct {
	Name    string
	Address abi.Address
}

type signedTx struct {
	params transaction.TxParams
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger emulates a node with the registry, controlled, clock, proxy,
// root/log and universe artifacts.
type Ledger struct {
	mu sync.Mutex

	network string
	block   uint64

	nonces     map[abi.Address]uint64
	usedNonces map[abi.Address]map[uint64]bool
	signed     map[uint64]signedTx
	signSeq    uint64
	receipts   map[abi.Hash]*transaction.Receipt

	contracts   map[abi.Address]*Contract
	nextAddress uint64
	deployments []Deployment
	invocations []string

	// GenesisTypeName is what created universes report as their type.
	GenesisTypeName string

	// SimulateZeroUniverse makes the createUniverse dry run return the zero
	// address.
	SimulateZeroUniverse bool

	// SimulateEmptyUniverse makes the createUniverse dry run return no data.
	SimulateEmptyUniverse bool

	// Now is the reading of the real clock.
	Now *big.Int

	failDeploy map[string]bool
	failSubmit map[string]bool
	failCall   map[string]bool
}

// NewLedger creates an empty ledger for network.
func NewLedger(network string) *Ledger {
	return &Ledger{
		network:         network,
		block:           100,
		nonces:          make(map[abi.Address]uint64),
		usedNonces:      make(map[abi.Address]map[uint64]bool),
		signed:          make(map[uint64]signedTx),
		receipts:        make(map[abi.Hash]*transaction.Receipt),
		contracts:       make(map[abi.Address]*Contract),
		GenesisTypeName: "Universe",
		Now:             big.NewInt(1_500_000_000),
		failDeploy:      make(map[string]bool),
		failSubmit:      make(map[string]bool),
		failCall:        make(map[string]bool),
	}
}

// FailDeploy makes uploads of name revert.
func (l *Ledger) FailDeploy(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failDeploy[name] = true
}

// FailSubmit makes submission of uploads of name fail at the transport.
func (l *Ledger) FailSubmit(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSubmit[name] = true
}

// FailCall makes every call of method on contracts named name revert, as
// in FailCall("CompleteSets", "setController").
func (l *Ledger) FailCall(name, method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failCall[name+"."+method] = true
}

// Install uploads code as from without going through a transaction.
func (l *Ledger) Install(from abi.Address, code []byte) (abi.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, err := l.create(from, code)
	if err != nil {
		return abi.ZeroAddress, err
	}
	return c.Address, nil
}

// Deployments returns every upload in order.
func (l *Ledger) Deployments() []Deployment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Deployment(nil), l.deployments...)
}

// DeploymentCount returns how many instances of name were uploaded.
func (l *Ledger) DeploymentCount(name string) int {
	n := 0
	for _, d := range l.Deployments() {
		if d.Name == name {
			n++
		}
	}
	return n
}

// Invocations returns "<artifact>.<method>" for every state-changing call.
func (l *Ledger) Invocations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.invocations...)
}

// InvocationCount returns how often method was invoked on artifact.
func (l *Ledger) InvocationCount(call string) int {
	n := 0
	for _, inv := range l.Invocations() {
		if inv == call {
			n++
		}
	}
	return n
}

// Contract returns a copy of the contract at addr.
func (l *Ledger) Contract(addr abi.Address) (Contract, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[addr]
	if !ok {
		return Contract{}, false
	}
	return *c, true
}

// Registered returns the entry stored under name in the registry at reg.
func (l *Ledger) Registered(reg abi.Address, name string) (Registration, bool) {
	key, err := abi.Bytes32String(name)
	if err != nil {
		return Registration{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[reg]
	if !ok || c.Registrations == nil {
		return Registration{}, false
	}
	r, ok := c.Registrations[key]
	return r, ok
}

// Whitelisted reports whether addr is on the whitelist of the registry at reg.
func (l *Ledger) Whitelisted(reg, addr abi.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[reg]
	return ok && c.Whitelist[addr]
}

// =============================================================================
// Chain
// =============================================================================

// BlockNumber returns the current block.
func (l *Ledger) BlockNumber(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block, nil
}

// NetworkID returns the network id.
func (l *Ledger) NetworkID(context.Context) (string, error) {
	return l.network, nil
}

// =============================================================================
// Transport
// =============================================================================

// EstimateFee returns a flat fee.
func (l *Ledger) EstimateFee(_ context.Context, msg transaction.CallMsg) (uint64, error) {
	return 21_000 + uint64(len(msg.Data))*16, nil
}

// NextSequenceNumber allocates the next nonce for account.
func (l *Ledger) NextSequenceNumber(_ context.Context, account abi.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.nonces[account]
	l.nonces[account] = n + 1
	return n, nil
}

// Sign stores params and returns an opaque handle.
func (l *Ledger) Sign(_ context.Context, params transaction.TxParams) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signSeq++
	l.signed[l.signSeq] = signedTx{params: params}
	return binary.BigEndian.AppendUint64(nil, l.signSeq), nil
}

// Submit executes the signed transaction immediately.
func (l *Ledger) Submit(_ context.Context, signed []byte) (abi.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(signed) != 8 {
		return abi.Hash{}, errors.New("unknown signed payload")
	}
	seq := binary.BigEndian.Uint64(signed)
	tx, ok := l.signed[seq]
	if !ok {
		return abi.Hash{}, errors.New("unknown signed payload")
	}
	delete(l.signed, seq)
	p := tx.params

	if p.To == nil {
		if name, _, _, ok := parseCode(p.Data); ok && l.failSubmit[name] {
			return abi.Hash{}, fmt.Errorf("submission of %s refused", name)
		}
	}

	used := l.usedNonces[p.From]
	if used == nil {
		used = make(map[uint64]bool)
		l.usedNonces[p.From] = used
	}
	if used[p.Nonce] {
		return abi.Hash{}, fmt.Errorf("nonce too low: %d", p.Nonce)
	}
	used[p.Nonce] = true

	l.block++
	var txID abi.Hash
	binary.BigEndian.PutUint64(txID[24:], seq)
	receipt := &transaction.Receipt{TxHash: txID, Status: 1, BlockNumber: l.block}

	if p.To == nil {
		c, err := l.create(p.From, p.Data)
		if err != nil {
			receipt.Status = 0
		} else {
			receipt.ContractAddress = c.Address
		}
	} else if _, err := l.execute(p.From, *p.To, p.Data, true); err != nil {
		receipt.Status = 0
	}

	l.receipts[txID] = receipt
	return txID, nil
}

// AwaitConfirmation returns the receipt of an executed transaction.
func (l *Ledger) AwaitConfirmation(_ context.Context, txID abi.Hash, description string) (*transaction.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[txID]
	if !ok {
		return nil, fmt.Errorf("no receipt for %s (%s)", txID.Hex(), description)
	}
	return r, nil
}

// Call executes msg without committing state.
func (l *Ledger) Call(_ context.Context, msg transaction.CallMsg) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.To == nil {
		return nil, errors.New("call without recipient")
	}
	return l.execute(msg.From, *msg.To, msg.Data, false)
}

// =============================================================================
// Execution
// =============================================================================

func (l *Ledger) allocateAddress() abi.Address {
	l.nextAddress++
	var a abi.Address
	a[0] = 0xc0
	binary.BigEndian.PutUint64(a[12:], l.nextAddress)
	return a
}

// peekAddress is the address the next creation will get.
func (l *Ledger) peekAddress() abi.Address {
	var a abi.Address
	a[0] = 0xc0
	binary.BigEndian.PutUint64(a[12:], l.nextAddress+1)
	return a
}

func (l *Ledger) create(from abi.Address, payload []byte) (*Contract, error) {
	name, revision, args, ok := parseCode(payload)
	if !ok {
		return nil, errors.New("unrecognised bytecode")
	}
	if l.failDeploy[name] {
		return nil, fmt.Errorf("constructor of %s reverted", name)
	}

	c := &Contract{
		Name:       name,
		Revision:   revision,
		Creator:    from,
		Controller: from,
	}
	switch name {
	case "Controller":
		c.Registrations = make(map[[32]byte]Registration)
		c.Whitelist = make(map[abi.Address]bool)
	case "Delegator":
		controller, err := abi.DecodeAddress(args, 0)
		if err != nil {
			return nil, err
		}
		key, err := abi.DecodeBytes32(args, 1)
		if err != nil {
			return nil, err
		}
		c.ProxyController = controller
		c.ProxyKey = key
	case "TimeControlled":
		c.Timestamp = new(big.Int).Set(l.Now)
	}

	c.Address = l.allocateAddress()
	l.contracts[c.Address] = c
	l.deployments = append(l.deployments, Deployment{Name: name, Address: c.Address})
	return c, nil
}

var methods = func() map[[4]byte]string {
	sigs := []string{
		"owner()",
		"registerContract(bytes32,address,bytes20,bytes32)",
		"getContractDetails(bytes32)",
		"addToWhitelist(address)",
		"whitelist(address)",
		"getController()",
		"setController(address)",
		"getTimestamp()",
		"setTimestamp(uint256)",
		"createUniverse(address)",
		"getTypeName()",
	}
	out := make(map[[4]byte]string, len(sigs))
	for _, s := range sigs {
		out[abi.Selector(s)] = s
	}
	return out
}()

// execute runs one call. State is only mutated when commit is set.
func (l *Ledger) execute(from, to abi.Address, data []byte, commit bool) ([]byte, error) {
	c, ok := l.contracts[to]
	if !ok {
		return nil, fmt.Errorf("%w: no code at %s", ErrRevert, to.Hex())
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short calldata", ErrRevert)
	}
	sig, ok := methods[[4]byte(data[:4])]
	if !ok {
		return nil, fmt.Errorf("%w: unknown selector", ErrRevert)
	}
	args := data[4:]
	call := c.Name + "." + sig[:bytes.IndexByte([]byte(sig), '(')]
	if commit {
		l.invocations = append(l.invocations, call)
	}
	if l.failCall[call] {
		return nil, fmt.Errorf("%w: %s refused", ErrRevert, call)
	}

	switch sig {
	case "getController()":
		return word(abi.AddressWord(c.Controller)), nil

	case "setController(address)":
		if from != c.Controller {
			return nil, fmt.Errorf("%w: caller is not the controller", ErrRevert)
		}
		controller, err := abi.DecodeAddress(args, 0)
		if err != nil {
			return nil, err
		}
		if commit {
			c.Controller = controller
		}
		return nil, nil
	}

	switch c.Name {
	case "Controller":
		return l.executeRegistry(c, from, sig, args, commit)
	case "Time", "TimeControlled":
		return l.executeClock(c, sig, args, commit)
	case "AugurLite":
		if sig == "createUniverse(address)" {
			return l.createUniverse(c, commit)
		}
	case "Universe":
		if sig == "getTypeName()" {
			name, err := abi.Bytes32String(l.GenesisTypeName)
			if err != nil {
				return nil, err
			}
			return word(abi.Bytes32Word(name)), nil
		}
	}
	return nil, fmt.Errorf("%w: %s not supported by %s", ErrRevert, sig, c.Name)
}

func (l *Ledger) executeRegistry(c *Contract, from abi.Address, sig string, args []byte, commit bool) ([]byte, error) {
	switch sig {
	case "owner()":
		return word(abi.AddressWord(c.Creator)), nil

	case "registerContract(bytes32,address,bytes20,bytes32)":
		if from != c.Creator {
			return nil, fmt.Errorf("%w: only owner", ErrRevert)
		}
		key, err := abi.DecodeBytes32(args, 0)
		if err != nil {
			return nil, err
		}
		addr, err := abi.DecodeAddress(args, 1)
		if err != nil {
			return nil, err
		}
		provenance, err := abi.DecodeFixedBytes(args, 2, 20)
		if err != nil {
			return nil, err
		}
		hash, err := abi.DecodeBytes32(args, 3)
		if err != nil {
			return nil, err
		}
		if commit {
			c.Registrations[key] = Registration{Address: addr, Provenance: [20]byte(provenance), ContentHash: hash}
		}
		return nil, nil

	case "getContractDetails(bytes32)":
		key, err := abi.DecodeBytes32(args, 0)
		if err != nil {
			return nil, err
		}
		r := c.Registrations[key]
		out := word(abi.AddressWord(r.Address))
		out = append(out, word(abi.FixedBytesWord(r.Provenance[:]))...)
		return append(out, word(abi.Bytes32Word(r.ContentHash))...), nil

	case "addToWhitelist(address)":
		if from != c.Creator {
			return nil, fmt.Errorf("%w: only owner", ErrRevert)
		}
		addr, err := abi.DecodeAddress(args, 0)
		if err != nil {
			return nil, err
		}
		if commit {
			c.Whitelist[addr] = true
		}
		return nil, nil

	case "whitelist(address)":
		addr, err := abi.DecodeAddress(args, 0)
		if err != nil {
			return nil, err
		}
		return word(abi.BoolWord(c.Whitelist[addr])), nil
	}
	return nil, fmt.Errorf("%w: %s not supported by registry", ErrRevert, sig)
}

func (l *Ledger) executeClock(c *Contract, sig string, args []byte, commit bool) ([]byte, error) {
	switch sig {
	case "getTimestamp()":
		if c.Timestamp == nil {
			return word(abi.BigWord(l.Now)), nil
		}
		return word(abi.BigWord(c.Timestamp)), nil

	case "setTimestamp(uint256)":
		if c.Timestamp == nil {
			return nil, fmt.Errorf("%w: clock is not controllable", ErrRevert)
		}
		ts, err := abi.DecodeBig(args, 0)
		if err != nil {
			return nil, err
		}
		if commit {
			c.Timestamp = ts
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s not supported by clock", ErrRevert, sig)
}

func (l *Ledger) createUniverse(root *Contract, commit bool) ([]byte, error) {
	if !commit {
		if l.SimulateEmptyUniverse {
			return nil, nil
		}
		if l.SimulateZeroUniverse {
			return word(abi.AddressWord(abi.ZeroAddress)), nil
		}
		return word(abi.AddressWord(l.peekAddress())), nil
	}
	u := &Contract{Name: "Universe", Creator: root.Address, Controller: root.Controller}
	u.Address = l.allocateAddress()
	l.contracts[u.Address] = u
	return word(abi.AddressWord(u.Address)), nil
}

func word(w abi.Word) []byte {
	return w[:]
}
