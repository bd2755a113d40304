package ticket

import (
	"bytes"
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/ticketvote/credential"
)

// Verifier checks ticket PCDs against a groth16 verifying key. It implements
// credential.ProofVerifier.
type Verifier struct {
	vk groth16.VerifyingKey
}

var _ credential.ProofVerifier = (*Verifier)(nil)

// NewVerifier returns a verifier for the given key.
func NewVerifier(vk groth16.VerifyingKey) *Verifier {
	return &Verifier{vk: vk}
}

// Verify decodes raw and verifies its proof. Decoding failures wrap
// credential.ErrMalformedProof and verification failures wrap
// credential.ErrInvalidProof. ctx is checked before the pairing check starts;
// once started it runs to completion, so callers bounding concurrent
// verifications hold their slot for the whole verification.
func (v *Verifier) Verify(ctx context.Context, raw []byte) (*credential.VerifiedClaim, error) {
	pcd, err := credential.Deserialize(raw)
	if err != nil {
		return nil, err
	}
	signer, err := pcd.SignerKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrMalformedProof, err)
	}
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(pcd.Proof)); err != nil {
		return nil, fmt.Errorf("%w: decode proof: %v", credential.ErrMalformedProof, err)
	}
	public, err := frontend.NewWitness(publicAssignment(pcd.Claim, signer), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: public inputs: %v", credential.ErrMalformedProof, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := groth16.Verify(proof, v.vk, public); err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrInvalidProof, err)
	}
	return pcd.VerifiedClaim()
}
