package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// FieldModulus is the BN254 scalar field, where every credential value lives.
var FieldModulus = ecc.BN254.ScalarField()

// ToField reduces x into the scalar field.
func ToField(x *big.Int) *big.Int {
	return new(big.Int).Mod(x, FieldModulus)
}

// UUIDToField maps a UUID (event, product or ticket id) to a field element.
// 128 bits always fit, so the mapping is injective.
func UUIDToField(id uuid.UUID) *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// FieldToUUID is the inverse of UUIDToField.
func FieldToUUID(x *big.Int) (uuid.UUID, error) {
	if x.Sign() < 0 || x.BitLen() > 128 {
		return uuid.Nil, fmt.Errorf("value does not fit a uuid")
	}
	var id uuid.UUID
	x.FillBytes(id[:])
	return id, nil
}

// StringToField hashes an arbitrary string (such as an email) into the field.
// The empty string maps to zero, meaning "not revealed".
func StringToField(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	return ToField(new(big.Int).SetBytes(crypto.Keccak256([]byte(strings.ToLower(s)))))
}

// AddressToField maps an Ethereum address, the usual watermark, to a field
// element.
func AddressToField(addr common.Address) *big.Int {
	return new(big.Int).SetBytes(addr.Bytes())
}

// ParseWatermark parses the watermark declared by a requester. Ethereum
// addresses are the common case, decimal or hex field elements are accepted
// too. Zero, the zero address included, is rejected.
func ParseWatermark(s string) (*big.Int, error) {
	var v *big.Int
	if common.IsHexAddress(s) {
		v = AddressToField(common.HexToAddress(s))
	} else {
		var ok bool
		v, ok = new(big.Int).SetString(s, 0)
		if !ok || v.Sign() < 0 || v.Cmp(FieldModulus) >= 0 {
			return nil, fmt.Errorf("invalid watermark %q", s)
		}
	}
	if v.Sign() == 0 {
		return nil, fmt.Errorf("invalid watermark %q: zero", s)
	}
	return v, nil
}

// BallotContext is what ballot validity proofs are bound to: the event and
// the watermark of the voter, so a proof cannot be replayed by another
// holder.
func BallotContext(eventID uuid.UUID, watermark *big.Int) []byte {
	out := make([]byte, 0, len(eventID)+32)
	out = append(out, eventID[:]...)
	return append(out, watermark.FillBytes(make([]byte, 32))...)
}
