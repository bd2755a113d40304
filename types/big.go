package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int that marshals to its decimal string, the way credential
// claims encode field elements.
type BigInt big.Int

// NewInt returns a BigInt set to x.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// MarshalText returns the decimal representation. A nil BigInt is "0".
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses a decimal or 0x prefixed hexadecimal number.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	if _, ok := (*big.Int)(i).SetString(string(data), 0); !ok {
		return fmt.Errorf("invalid number %q", data)
	}
	return nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (i *BigInt) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	return i.UnmarshalText(data)
}

// MarshalCBOR encodes the number as a CBOR text string.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	txt, err := i.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(txt))
}

// UnmarshalCBOR decodes a number encoded with MarshalCBOR.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return i.UnmarshalText([]byte(s))
}

func (i *BigInt) String() string {
	return (*big.Int)(i).String()
}

// MathBigInt returns the underlying *big.Int (not a copy).
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// SetBigInt sets i to x and returns i.
func (i *BigInt) SetBigInt(x *big.Int) *BigInt {
	(*big.Int)(i).Set(x)
	return i
}

// SetBytes interprets buf as a big-endian unsigned integer.
func (i *BigInt) SetBytes(buf []byte) *BigInt {
	(*big.Int)(i).SetBytes(buf)
	return i
}

// Bytes32 returns the 32 byte big-endian encoding.
func (i *BigInt) Bytes32() HexBytes {
	return (*big.Int)(i).FillBytes(make([]byte, 32))
}

// Equal compares the values of i and j. Two nil values are equal.
func (i *BigInt) Equal(j *BigInt) bool {
	if i == nil || j == nil {
		return i == j
	}
	return (*big.Int)(i).Cmp((*big.Int)(j)) == 0
}
