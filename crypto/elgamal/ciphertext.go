package elgamal

import (
	"fmt"

	"github.com/vocdoni/ticketvote/crypto/ecc/bjj"
)

// CiphertextSize is the length of a serialized ciphertext.
const CiphertextSize = 2 * bjj.Size

// Ciphertext is an ElGamal ciphertext (C1, C2).
type Ciphertext struct {
	C1 *bjj.Point
	C2 *bjj.Point
}

// Zero returns the identity ciphertext, the trivial encryption of zero.
func Zero() *Ciphertext {
	return &Ciphertext{C1: bjj.New(), C2: bjj.New()}
}

// Add returns a new ciphertext encrypting the sum of the plaintexts of a and
// b. Neither operand is modified.
func Add(a, b *Ciphertext) *Ciphertext {
	return &Ciphertext{
		C1: bjj.New().Add(a.C1, b.C1),
		C2: bjj.New().Add(a.C2, b.C2),
	}
}

// IsZero reports whether ct is the identity ciphertext.
func (ct *Ciphertext) IsZero() bool {
	return ct.C1.IsZero() && ct.C2.IsZero()
}

// Equal reports whether both ciphertexts have the same points.
func (ct *Ciphertext) Equal(other *Ciphertext) bool {
	return ct.C1.Equal(other.C1) && ct.C2.Equal(other.C2)
}

// Marshal serializes the ciphertext as compressed C1 || compressed C2.
func (ct *Ciphertext) Marshal() []byte {
	out := make([]byte, 0, CiphertextSize)
	out = append(out, ct.C1.Marshal()...)
	return append(out, ct.C2.Marshal()...)
}

// UnmarshalCiphertext decodes a ciphertext and validates both points.
func UnmarshalCiphertext(data []byte) (*Ciphertext, error) {
	if len(data) != CiphertextSize {
		return nil, fmt.Errorf("invalid ciphertext length %d, expected %d", len(data), CiphertextSize)
	}
	c1, c2 := bjj.New(), bjj.New()
	if err := c1.Unmarshal(data[:bjj.Size]); err != nil {
		return nil, fmt.Errorf("invalid C1: %w", err)
	}
	if err := c2.Unmarshal(data[bjj.Size:]); err != nil {
		return nil, fmt.Errorf("invalid C2: %w", err)
	}
	return &Ciphertext{C1: c1, C2: c2}, nil
}
