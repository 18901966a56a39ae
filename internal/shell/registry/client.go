// Package registry speaks the registry contract's protocol: registering
// uploaded artifacts under fixed-width keys, reading registrations back,
// maintaining the whitelist and reporting ownership.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/artpar/deployer/internal/core/abi"
	"github.com/artpar/deployer/internal/shell/transaction"
)

// Method signatures of the registry contract.
const (
	sigRegisterContract   = "registerContract(bytes32,address,bytes20,bytes32)"
	sigGetContractDetails = "getContractDetails(bytes32)"
	sigAddToWhitelist     = "addToWhitelist(address)"
	sigWhitelist          = "whitelist(address)"
	sigOwner              = "owner()"
)

// Label names the registry in transaction errors and logs.
const Label = "Controller"

// Provenance is the 20 byte source-revision marker stored with a
// registration.
type Provenance [20]byte

// Details is one registry entry. The zero value means never registered.
type Details struct {
	Address     abi.Address
	Provenance  Provenance
	ContentHash abi.Hash
}

// IsZero reports whether the entry was never registered.
func (d Details) IsZero() bool {
	return d == Details{}
}

// =============================================================================
// Keys
// =============================================================================

// Key encodes a logical name as a registry key.
func Key(name string) ([32]byte, error) {
	k, err := abi.Bytes32String(name)
	if err != nil {
		return k, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return k, nil
}

// TargetKey is the key under which the implementation behind a delegated
// name is registered.
func TargetKey(name string) ([32]byte, error) {
	return Key(name + "Target")
}

// KeyName decodes a key back to its name, dropping the zero padding.
func KeyName(key [32]byte) string {
	return string(bytes.TrimRight(key[:], "\x00"))
}

// =============================================================================
// Client
// =============================================================================

// Client binds the registry protocol to one registry address.
type Client struct {
	invoker transaction.Invoker
	address abi.Address
}

// NewClient creates a registry client for the registry at address.
func NewClient(invoker transaction.Invoker, address abi.Address) *Client {
	return &Client{invoker: invoker, address: address}
}

// Address returns the registry address.
func (c *Client) Address() abi.Address {
	return c.address
}

// RegisterContract records address, provenance and content hash under key.
func (c *Client) RegisterContract(ctx context.Context, key [32]byte, address abi.Address, provenance Provenance, contentHash abi.Hash) error {
	data := abi.EncodeCall(sigRegisterContract,
		abi.Bytes32Word(key),
		abi.AddressWord(address),
		abi.FixedBytesWord(provenance[:]),
		abi.Bytes32Word(contentHash),
	)
	name := KeyName(key)
	if _, err := c.invoker.Invoke(ctx, c.address, data, Label, "Registering "+name); err != nil {
		if errors.Is(err, transaction.ErrReverted) {
			return NewRegistryError("register", name, fmt.Errorf("%w: %w", ErrRegistrationRejected, err))
		}
		return NewRegistryError("register", name, err)
	}
	return nil
}

// GetRegisteredDetails reads the entry stored under key.
func (c *Client) GetRegisteredDetails(ctx context.Context, key [32]byte) (Details, error) {
	name := KeyName(key)
	out, err := c.invoker.Read(ctx, c.address, abi.EncodeCall(sigGetContractDetails, abi.Bytes32Word(key)), Label)
	if err != nil {
		return Details{}, NewRegistryError("get details", name, err)
	}

	var d Details
	if d.Address, err = abi.DecodeAddress(out, 0); err != nil {
		return Details{}, NewRegistryError("get details", name, err)
	}
	provenance, err := abi.DecodeFixedBytes(out, 1, len(d.Provenance))
	if err != nil {
		return Details{}, NewRegistryError("get details", name, err)
	}
	copy(d.Provenance[:], provenance)
	hash, err := abi.DecodeBytes32(out, 2)
	if err != nil {
		return Details{}, NewRegistryError("get details", name, err)
	}
	d.ContentHash = hash
	return d, nil
}

// AddToWhitelist grants address privileged access to the registry.
func (c *Client) AddToWhitelist(ctx context.Context, address abi.Address, name string) error {
	data := abi.EncodeCall(sigAddToWhitelist, abi.AddressWord(address))
	if _, err := c.invoker.Invoke(ctx, c.address, data, Label, "Whitelisting "+name); err != nil {
		return NewRegistryError("whitelist", name, err)
	}
	return nil
}

// IsWhitelisted reports whether address is whitelisted.
func (c *Client) IsWhitelisted(ctx context.Context, address abi.Address) (bool, error) {
	out, err := c.invoker.Read(ctx, c.address, abi.EncodeCall(sigWhitelist, abi.AddressWord(address)), Label)
	if err != nil {
		return false, NewRegistryError("is whitelisted", address.Hex(), err)
	}
	ok, err := abi.DecodeBool(out, 0)
	if err != nil {
		return false, NewRegistryError("is whitelisted", address.Hex(), err)
	}
	return ok, nil
}

// GetOwner returns the registry owner.
func (c *Client) GetOwner(ctx context.Context) (abi.Address, error) {
	out, err := c.invoker.Read(ctx, c.address, abi.EncodeCall(sigOwner), Label)
	if err != nil {
		return abi.ZeroAddress, NewRegistryError("owner", "", err)
	}
	owner, err := abi.DecodeAddress(out, 0)
	if err != nil {
		return abi.ZeroAddress, NewRegistryError("owner", "", err)
	}
	return owner, nil
}

// VerifyOwner fails with ErrOwnershipMismatch unless caller owns the
// registry.
func (c *Client) VerifyOwner(ctx context.Context, caller abi.Address) error {
	owner, err := c.GetOwner(ctx)
	if err != nil {
		return err
	}
	if owner != caller {
		return NewRegistryError("verify owner", "", fmt.Errorf("%w: owner %s, sender %s", ErrOwnershipMismatch, owner.Hex(), caller.Hex()))
	}
	return nil
}
