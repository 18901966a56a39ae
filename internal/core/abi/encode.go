package abi

import (
	"math/big"
	"reflect"
	"strconv"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// WordSize is the width of one encoded value.
const WordSize = 32

// Word is one 32 byte encoded value.
type Word [WordSize]byte

// =============================================================================
// Selectors and calls
// =============================================================================

// Selector returns the first four bytes of the Keccak-256 digest of a
// canonical function signature such as "owner()".
func Selector(signature string) [4]byte {
	return [4]byte(crypto.Keccak256([]byte(signature))[:4])
}

// EncodeCall builds calldata: selector followed by the argument words.
//
// Example:
//
//	data := EncodeCall("addToWhitelist(address)", AddressWord(target))
func EncodeCall(signature string, args ...Word) []byte {
	sel := Selector(signature)
	out := make([]byte, 0, 4+len(args)*WordSize)
	out = append(out, sel[:]...)
	for _, w := range args {
		out = append(out, w[:]...)
	}
	return out
}

// =============================================================================
// Word constructors
// =============================================================================

// AddressWord left pads an address to a word.
func AddressWord(a Address) Word {
	return Word(common.LeftPadBytes(a.Bytes(), WordSize))
}

// Bytes32Word wraps a bytes32 value.
func Bytes32Word(b [32]byte) Word {
	return Word(b)
}

// FixedBytesWord right pads a bytesN value (N <= 32) to a word.
func FixedBytesWord(b []byte) Word {
	var w Word
	copy(w[:], common.RightPadBytes(b, WordSize))
	return w
}

// UintWord encodes an unsigned integer.
func UintWord(v uint64) Word {
	return BigWord(new(big.Int).SetUint64(v))
}

// BigWord encodes a big integer in 256 bit two's complement.
func BigWord(v *big.Int) Word {
	return Word(math.U256Bytes(new(big.Int).Set(v)))
}

// BoolWord encodes a boolean.
func BoolWord(v bool) Word {
	if v {
		return UintWord(1)
	}
	return Word{}
}

// =============================================================================
// Constructor arguments
// =============================================================================

// EncodeConstructorArgs encodes string-form arguments against the constructor
// declared in iface. No arguments yields an empty encoding even when the
// interface has no constructor.
func EncodeConstructorArgs(iface Interface, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if !HasConstructor(iface) {
		return nil, ErrMissingConstructor
	}
	inputs := iface.Constructor.Inputs
	if len(inputs) != len(args) {
		return nil, &EncodeError{
			Index:   len(args),
			Type:    "constructor",
			Message: "expected " + strconv.Itoa(len(inputs)) + " arguments",
			Err:     ErrArgumentCount,
		}
	}

	values := make([]any, len(args))
	for i, arg := range inputs {
		v, err := convertValue(arg.Type, args[i])
		if err != nil {
			return nil, &EncodeError{Index: i, Type: arg.Type.String(), Value: args[i], Message: err.Error(), Err: err}
		}
		values[i] = v
	}
	out, err := inputs.Pack(values...)
	if err != nil {
		return nil, &EncodeError{Index: 0, Type: "constructor", Message: err.Error(), Err: ErrInvalidValue}
	}
	return out, nil
}

// EncodeValue encodes one string-form value of typ on its own.
func EncodeValue(typ, value string) ([]byte, error) {
	t, err := ethabi.NewType(typ, "", nil)
	if err != nil {
		return nil, ErrUnsupportedType
	}
	v, err := convertValue(t, value)
	if err != nil {
		return nil, err
	}
	out, err := ethabi.Arguments{{Type: t}}.Pack(v)
	if err != nil {
		return nil, ErrInvalidValue
	}
	return out, nil
}

// convertValue turns a string-form value into the Go value the packer
// expects for t. Arrays, slices and tuples are not accepted.
func convertValue(t ethabi.Type, value string) (any, error) {
	switch t.T {
	case ethabi.AddressTy:
		return ParseAddress(value)

	case ethabi.BoolTy:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, ErrInvalidValue
		}
		return b, nil

	case ethabi.UintTy, ethabi.IntTy:
		v, ok := parseInteger(value)
		if !ok {
			return nil, ErrInvalidValue
		}
		if t.T == ethabi.UintTy && (v.Sign() < 0 || v.BitLen() > t.Size) {
			return nil, ErrInvalidValue
		}
		if t.T == ethabi.IntTy && v.BitLen() >= t.Size {
			return nil, ErrInvalidValue
		}
		goType := t.GetType()
		switch goType.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out := reflect.New(goType).Elem()
			out.SetUint(v.Uint64())
			return out.Interface(), nil
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out := reflect.New(goType).Elem()
			out.SetInt(v.Int64())
			return out.Interface(), nil
		}
		return v, nil

	case ethabi.FixedBytesTy:
		raw, err := hexutil.Decode(value)
		if err != nil || len(raw) > t.Size {
			return nil, ErrInvalidValue
		}
		out := reflect.New(t.GetType()).Elem()
		reflect.Copy(out, reflect.ValueOf(raw))
		return out.Interface(), nil

	case ethabi.BytesTy:
		raw, err := hexutil.Decode(value)
		if err != nil {
			return nil, ErrInvalidValue
		}
		return raw, nil

	case ethabi.StringTy:
		return value, nil

	default:
		return nil, ErrUnsupportedType
	}
}

func parseInteger(s string) (*big.Int, bool) {
	if strings.HasPrefix(s, "0x") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// =============================================================================
// Decoding return data
// =============================================================================

// word returns the index-th word of return data.
func word(data []byte, index int) (Word, error) {
	start := index * WordSize
	if index < 0 || len(data) < start+WordSize {
		return Word{}, ErrShortData
	}
	return Word(data[start : start+WordSize]), nil
}

// DecodeAddress reads an address from the index-th word.
func DecodeAddress(data []byte, index int) (Address, error) {
	w, err := word(data, index)
	if err != nil {
		return ZeroAddress, err
	}
	return common.BytesToAddress(w[WordSize-AddressLength:]), nil
}

// DecodeBool reads a boolean from the index-th word.
func DecodeBool(data []byte, index int) (bool, error) {
	w, err := word(data, index)
	if err != nil {
		return false, err
	}
	return new(big.Int).SetBytes(w[:]).Sign() != 0, nil
}

// DecodeBytes32 reads a bytes32 value from the index-th word.
func DecodeBytes32(data []byte, index int) ([32]byte, error) {
	w, err := word(data, index)
	return [32]byte(w), err
}

// DecodeFixedBytes reads a left-aligned bytesN value from the index-th word.
func DecodeFixedBytes(data []byte, index, size int) ([]byte, error) {
	w, err := word(data, index)
	if err != nil {
		return nil, err
	}
	return common.CopyBytes(w[:size]), nil
}

// DecodeBig reads an unsigned integer from the index-th word.
func DecodeBig(data []byte, index int) (*big.Int, error) {
	w, err := word(data, index)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w[:]), nil
}
