package abi

import (
	"fmt"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

// =============================================================================
// Interface Signatures
// =============================================================================

// Interface is the parsed interface of an artifact: its constructor,
// functions and events, in the shape compilers emit. It decodes directly
// from the compiler's JSON.
type Interface = ethabi.ABI

// ParseInterface parses a JSON interface description.
func ParseInterface(raw string) (Interface, error) {
	iface, err := ethabi.JSON(strings.NewReader(raw))
	if err != nil {
		return Interface{}, fmt.Errorf("%w: interface: %v", ErrInvalidValue, err)
	}
	return iface, nil
}

// MustParseInterface is ParseInterface for fixtures.
func MustParseInterface(raw string) Interface {
	iface, err := ParseInterface(raw)
	if err != nil {
		panic(err)
	}
	return iface
}

// HasConstructor reports whether iface declares a constructor.
func HasConstructor(iface Interface) bool {
	return iface.Constructor.Sig != "" || len(iface.Constructor.Inputs) > 0
}

// ConstructorTypes returns the constructor's parameter types in declaration
// order.
func ConstructorTypes(iface Interface) []string {
	types := make([]string, len(iface.Constructor.Inputs))
	for i, arg := range iface.Constructor.Inputs {
		types[i] = arg.Type.String()
	}
	return types
}
