package elgamal

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/ticketvote/crypto/ecc/bjj"
)

// PublicKey is the aggregation key ballots are encrypted to.
type PublicKey struct {
	point *bjj.Point
}

// Point returns a copy of the public key point.
func (pk *PublicKey) Point() *bjj.Point {
	return pk.point.Clone()
}

// Marshal returns the compressed point, the wire format served to clients.
func (pk *PublicKey) Marshal() []byte {
	return pk.point.Marshal()
}

// UnmarshalPublicKey decodes a compressed public key.
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	p := bjj.New()
	if err := p.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	if p.IsZero() {
		return nil, fmt.Errorf("invalid public key: identity point")
	}
	return &PublicKey{point: p}, nil
}

// SecretKey is the decryption scalar.
type SecretKey struct {
	d *big.Int
}

// Public derives the public key d·G.
func (sk *SecretKey) Public() *PublicKey {
	return &PublicKey{point: bjj.New().ScalarBaseMult(sk.d)}
}

// Marshal returns the scalar as 32 big-endian bytes.
func (sk *SecretKey) Marshal() []byte {
	return sk.d.FillBytes(make([]byte, 32))
}

// UnmarshalSecretKey decodes a secret key produced by Marshal.
func UnmarshalSecretKey(data []byte) (*SecretKey, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid secret key length %d", len(data))
	}
	d := new(big.Int).SetBytes(data)
	if d.Sign() == 0 || d.Cmp(bjj.Order()) >= 0 {
		return nil, fmt.Errorf("secret key out of range")
	}
	return &SecretKey{d: d}, nil
}
