// Package bjj wraps the iden3 BabyJubJub implementation with the small set of
// group operations needed by the additively homomorphic ElGamal scheme.
package bjj

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/constants"
)

// Size is the length of a compressed point.
const Size = 32

// ErrInvalidPoint is returned when decoding bytes that are not a point of the
// prime order subgroup.
var ErrInvalidPoint = fmt.Errorf("invalid babyjubjub point")

// Point is an affine BabyJubJub point. The zero value is not usable, create
// points with New or Generator.
type Point struct {
	inner *babyjub.Point
}

// New returns the identity element.
func New() *Point {
	return &Point{inner: babyjub.NewPoint()}
}

// Generator returns the base point B8 of the prime order subgroup.
func Generator() *Point {
	return &Point{inner: &babyjub.Point{
		X: new(big.Int).Set(babyjub.B8.X),
		Y: new(big.Int).Set(babyjub.B8.Y),
	}}
}

// FromCoordinates builds a point from its affine coordinates and checks it
// belongs to the subgroup.
func FromCoordinates(x, y *big.Int) (*Point, error) {
	p := &Point{inner: &babyjub.Point{X: new(big.Int).Set(x), Y: new(big.Int).Set(y)}}
	if !p.inner.InCurve() || !p.inner.InSubGroup() {
		return nil, ErrInvalidPoint
	}
	return p, nil
}

// Order returns the order of the subgroup generated by B8.
func Order() *big.Int {
	return new(big.Int).Set(babyjub.SubOrder)
}

// Clone returns a copy of p.
func (p *Point) Clone() *Point {
	return &Point{inner: &babyjub.Point{
		X: new(big.Int).Set(p.inner.X),
		Y: new(big.Int).Set(p.inner.Y),
	}}
}

// Add sets p = a + b and returns p.
func (p *Point) Add(a, b *Point) *Point {
	sum := babyjub.NewPointProjective().Add(a.inner.Projective(), b.inner.Projective())
	p.inner = sum.Affine()
	return p
}

// Neg sets p = -a and returns p.
func (p *Point) Neg(a *Point) *Point {
	x := new(big.Int).Neg(a.inner.X)
	x.Mod(x, constants.Q)
	p.inner = &babyjub.Point{X: x, Y: new(big.Int).Set(a.inner.Y)}
	return p
}

// ScalarMult sets p = k·a and returns p.
func (p *Point) ScalarMult(a *Point, k *big.Int) *Point {
	p.inner = babyjub.NewPoint().Mul(k, a.inner)
	return p
}

// ScalarBaseMult sets p = k·B8 and returns p.
func (p *Point) ScalarBaseMult(k *big.Int) *Point {
	p.inner = babyjub.NewPoint().Mul(k, babyjub.B8)
	return p
}

// IsZero reports whether p is the identity element.
func (p *Point) IsZero() bool {
	return p.inner.X.Sign() == 0 && p.inner.Y.Cmp(big.NewInt(1)) == 0
}

// Equal reports whether p and q are the same point.
func (p *Point) Equal(q *Point) bool {
	return p.inner.X.Cmp(q.inner.X) == 0 && p.inner.Y.Cmp(q.inner.Y) == 0
}

// Coordinates returns copies of the affine coordinates.
func (p *Point) Coordinates() (x, y *big.Int) {
	return new(big.Int).Set(p.inner.X), new(big.Int).Set(p.inner.Y)
}

// Marshal returns the 32 byte compressed encoding.
func (p *Point) Marshal() []byte {
	b := p.inner.Compress()
	return b[:]
}

// Unmarshal decodes a compressed point, rejecting points outside the prime
// order subgroup.
func (p *Point) Unmarshal(buf []byte) error {
	if len(buf) != Size {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPoint, Size, len(buf))
	}
	var b [Size]byte
	copy(b[:], buf)
	dec, err := babyjub.NewPoint().Decompress(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	if !dec.InSubGroup() {
		return ErrInvalidPoint
	}
	p.inner = dec
	return nil
}

// String returns the hex encoded compressed point.
func (p *Point) String() string {
	return hex.EncodeToString(p.Marshal())
}

// MarshalJSON encodes the point as its compressed hex string.
func (p *Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a compressed hex string.
func (p *Point) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	return p.Unmarshal(buf)
}

// MarshalCBOR encodes the point as a CBOR byte string.
func (p *Point) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(p.Marshal())
}

// UnmarshalCBOR decodes a point encoded with MarshalCBOR.
func (p *Point) UnmarshalCBOR(data []byte) error {
	var buf []byte
	if err := cbor.Unmarshal(data, &buf); err != nil {
		return err
	}
	return p.Unmarshal(buf)
}
