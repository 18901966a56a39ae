// Package contracts holds typed bindings for the few artifact methods the
// orchestrator calls directly: controller wiring, the controllable clock,
// the root/log factory and the genesis universe.
package contracts

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/shell/transaction"
)

const (
	sigGetController  = "getController()"
	sigSetController  = "setController(address)"
	sigGetTimestamp   = "getTimestamp()"
	sigSetTimestamp   = "setTimestamp(uint256)"
	sigCreateUniverse = "createUniverse(address)"
	sigGetTypeName    = "getTypeName()"
)

// =============================================================================
// Controlled
// =============================================================================

// Controlled is any artifact wired to the registry through a controller
// slot.
type Controlled struct {
	invoker transaction.Invoker
	address abi.Address
	name    string
}

// NewControlled binds the controlled artifact name uploaded at address.
func NewControlled(invoker transaction.Invoker, address abi.Address, name string) *Controlled {
	return &Controlled{invoker: invoker, address: address, name: name}
}

// Address returns the bound address.
func (c *Controlled) Address() abi.Address {
	return c.address
}

// Controller returns the artifact's current controller.
func (c *Controlled) Controller(ctx context.Context) (abi.Address, error) {
	out, err := c.invoker.Read(ctx, c.address, abi.EncodeCall(sigGetController), c.name)
	if err != nil {
		return abi.ZeroAddress, err
	}
	return abi.DecodeAddress(out, 0)
}

// SetController points the artifact at controller.
func (c *Controlled) SetController(ctx context.Context, controller abi.Address) error {
	data := abi.EncodeCall(sigSetController, abi.AddressWord(controller))
	_, err := c.invoker.Invoke(ctx, c.address, data, c.name, "Setting controller of "+c.name)
	return err
}

// EnsureController sets the controller unless it is already controller.
// It reports whether a transaction was sent.
func (c *Controlled) EnsureController(ctx context.Context, controller abi.Address) (bool, error) {
	current, err := c.Controller(ctx)
	if err != nil {
		return false, err
	}
	if current == controller {
		return false, nil
	}
	return true, c.SetController(ctx, controller)
}

// =============================================================================
// Clock
// =============================================================================

// Clock is the controllable clock used on test networks.
type Clock struct {
	*Controlled
}

// NewClock binds the clock uploaded at address.
func NewClock(invoker transaction.Invoker, address abi.Address, name string) *Clock {
	return &Clock{Controlled: NewControlled(invoker, address, name)}
}

// Timestamp returns the clock's current time.
func (c *Clock) Timestamp(ctx context.Context) (*big.Int, error) {
	out, err := c.invoker.Read(ctx, c.address, abi.EncodeCall(sigGetTimestamp), c.name)
	if err != nil {
		return nil, err
	}
	return abi.DecodeBig(out, 0)
}

// SetTimestamp moves the clock to ts.
func (c *Clock) SetTimestamp(ctx context.Context, ts *big.Int) error {
	data := abi.EncodeCall(sigSetTimestamp, abi.BigWord(ts))
	_, err := c.invoker.Invoke(ctx, c.address, data, c.name, "Resetting timestamp of "+c.name)
	return err
}

// Resync sets the clock to its own current reading and returns it.
func (c *Clock) Resync(ctx context.Context) (*big.Int, error) {
	ts, err := c.Timestamp(ctx)
	if err != nil {
		return nil, err
	}
	return ts, c.SetTimestamp(ctx, ts)
}

// =============================================================================
// Root log
// =============================================================================

// RootLog is the root/log artifact that creates universes.
type RootLog struct {
	*Controlled
}

// NewRootLog binds the root/log artifact uploaded at address.
func NewRootLog(invoker transaction.Invoker, address abi.Address, name string) *RootLog {
	return &RootLog{Controlled: NewControlled(invoker, address, name)}
}

// SimulateCreateUniverse dry-runs universe creation and returns the address
// it would produce. An empty result reads as the zero address.
func (r *RootLog) SimulateCreateUniverse(ctx context.Context, denominationToken abi.Address) (abi.Address, error) {
	out, err := r.invoker.Read(ctx, r.address, abi.EncodeCall(sigCreateUniverse, abi.AddressWord(denominationToken)), r.name)
	if err != nil {
		return abi.ZeroAddress, err
	}
	if len(out) == 0 {
		return abi.ZeroAddress, nil
	}
	return abi.DecodeAddress(out, 0)
}

// CreateUniverse submits universe creation.
func (r *RootLog) CreateUniverse(ctx context.Context, denominationToken abi.Address) error {
	data := abi.EncodeCall(sigCreateUniverse, abi.AddressWord(denominationToken))
	_, err := r.invoker.Invoke(ctx, r.address, data, r.name, "Creating genesis universe")
	return err
}

// =============================================================================
// Universe
// =============================================================================

// Universe is a created universe.
type Universe struct {
	invoker transaction.Invoker
	address abi.Address
}

// NewUniverse binds the universe at address.
func NewUniverse(invoker transaction.Invoker, address abi.Address) *Universe {
	return &Universe{invoker: invoker, address: address}
}

// TypeName returns the artifact's self-reported type name with the zero
// padding removed.
func (u *Universe) TypeName(ctx context.Context) (string, error) {
	out, err := u.invoker.Read(ctx, u.address, abi.EncodeCall(sigGetTypeName), "Universe")
	if err != nil {
		return "", err
	}
	name, err := abi.DecodeBytes32(out, 0)
	if err != nil {
		return "", fmt.Errorf("decode type name: %w", err)
	}
	return string(bytes.TrimRight(name[:], "\x00")), nil
}
