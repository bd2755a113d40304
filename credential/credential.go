// Package credential adapts anonymous credential proofs (PCDs) to the claims
// the admission controller reasons about, and holds the trusted issuer set.
package credential

import (
	"context"
	"errors"
	"math/big"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/types"
)

var (
	// ErrMalformedProof is returned when the serialized proof cannot be
	// decoded.
	ErrMalformedProof = errors.New("malformed proof")
	// ErrInvalidProof is returned when the proof does not verify.
	ErrInvalidProof = errors.New("invalid proof")
)

// Signer identifies a credential issuer by the two coordinates of its public
// key.
type Signer [2]*types.BigInt

// Equal compares both coordinates.
func (s Signer) Equal(o Signer) bool {
	return s[0].Equal(o[0]) && s[1].Equal(o[1])
}

// String returns the "x:y" hex form used in configuration files.
func (s Signer) String() string {
	if s[0] == nil || s[1] == nil {
		return "<nil>"
	}
	return s[0].Bytes32().Hex() + ":" + s[1].Bytes32().Hex()
}

// Claims are the ticket attributes disclosed by the proof. Email is empty
// when the holder chose not to reveal it.
type Claims struct {
	EventID       uuid.UUID
	ProductID     uuid.UUID
	AttendeeEmail *big.Int
}

// VerifiedClaim is the result of a successful verification.
type VerifiedClaim struct {
	Signer            Signer
	NullifierHash     types.HexBytes
	ExternalNullifier *big.Int
	Watermark         *big.Int
	Claims            Claims
}

// ProofVerifier checks a serialized credential proof. Implementations must be
// free of side effects and should return early when ctx is done.
type ProofVerifier interface {
	Verify(ctx context.Context, raw []byte) (*VerifiedClaim, error)
}
