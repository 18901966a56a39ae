// Package abi provides pure functions for the word encoding used by ledger
// calls and deployment payloads.
//
// This package is part of the functional core: no I/O, no side effects.
// Addresses, hashes and interfaces are the go-ethereum types; constructor
// arguments are packed with go-ethereum's accounts/abi from their string
// form. Call arguments are built word by word, which covers the static
// types the registry protocol uses.
//
// # Usage
//
//	calldata := abi.EncodeCall("getContractDetails(bytes32)", key)
//	owner, err := abi.DecodeAddress(result, 0)
//	payload, err := abi.EncodeConstructorArgs(iface, []string{registry.Hex(), targetKey})
package abi
