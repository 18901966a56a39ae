package abi

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// =============================================================================
// Address
// =============================================================================

// AddressLength is the byte length of a ledger address.
const AddressLength = common.AddressLength

// Address is a ledger account or artifact instance address.
type Address = common.Address

// Hash is a 32 byte digest (transaction id, content hash).
type Hash = common.Hash

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed (or bare) 40 character hex address.
// Case is ignored; no checksum is enforced.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("%w: address %q must be %d hex characters", ErrInvalidValue, s, AddressLength*2)
	}
	return common.HexToAddress(s), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZeroAddress reports whether a is unset.
func IsZeroAddress(a Address) bool {
	return a == ZeroAddress
}

// =============================================================================
// Hash
// =============================================================================

// ParseHash parses a 0x-prefixed 64 character hex string.
func ParseHash(s string) (Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return Hash{}, fmt.Errorf("%w: hash %q: %v", ErrInvalidValue, s, err)
	}
	if len(b) != common.HashLength {
		return Hash{}, fmt.Errorf("%w: hash %q must be %d bytes", ErrInvalidValue, s, common.HashLength)
	}
	return common.BytesToHash(b), nil
}

// IsZeroHash reports whether every byte of h is zero.
func IsZeroHash(h Hash) bool {
	return h == Hash{}
}

// =============================================================================
// Fixed-width names
// =============================================================================

// Bytes32String encodes a name as UTF-8 bytes right padded to 32 bytes.
//
// Example:
//
//	key, _ := Bytes32String("Controller")
//	// 0x436f6e74726f6c6c6572000000...
func Bytes32String(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > len(out) {
		return out, fmt.Errorf("%w: %q is %d bytes", ErrNameTooLong, s, len(s))
	}
	copy(out[:], s)
	return out, nil
}

// Bytes32Hex is the 0x-prefixed hex form of a bytes32 value.
func Bytes32Hex(b [32]byte) string {
	return hexutil.Encode(b[:])
}
