package ticket

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/google/uuid"
	circuit "github.com/vocdoni/ticketvote/circuits/ticket"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/types"
)

// ProofRequest describes the statement a holder wants to prove.
type ProofRequest struct {
	Ticket            *Ticket
	Identity          *Identity
	ExternalNullifier *big.Int
	Watermark         *big.Int
	RevealEmail       bool
}

// publicAssignment fills the public inputs of the circuit from a claim.
func publicAssignment(c credential.PCDClaim, signer credential.Signer) *circuit.Circuit {
	a := &circuit.Circuit{
		NullifierHash:     c.NullifierHash.MathBigInt(),
		ExternalNullifier: c.ExternalNullifier.MathBigInt(),
		Watermark:         c.Watermark.MathBigInt(),
		EventID:           types.UUIDToField(c.PartialTicket.EventID),
		ProductID:         types.UUIDToField(c.PartialTicket.ProductID),
		RevealEmail:       0,
		RevealedEmail:     0,
	}
	a.Signer.A.X = signer[0].MathBigInt()
	a.Signer.A.Y = signer[1].MathBigInt()
	if c.PartialTicket.AttendeeEmail != nil {
		a.RevealEmail = 1
		a.RevealedEmail = c.PartialTicket.AttendeeEmail.MathBigInt()
	}
	return a
}

// Claim returns the public statement of req without proving it.
func (req *ProofRequest) Claim() credential.PCDClaim {
	t := req.Ticket
	claim := credential.PCDClaim{
		PartialTicket: credential.PartialTicket{
			EventID:   t.EventID,
			ProductID: t.ProductID,
		},
		Signer: [2]string{
			t.Signer[0].Bytes32().Hex(),
			t.Signer[1].Bytes32().Hex(),
		},
		NullifierHash:     new(types.BigInt).SetBigInt(circuit.NullifierHash(req.Identity.Nullifier, req.ExternalNullifier)),
		ExternalNullifier: new(types.BigInt).SetBigInt(types.ToField(req.ExternalNullifier)),
		Watermark:         new(types.BigInt).SetBigInt(req.Watermark),
	}
	if req.RevealEmail {
		claim.PartialTicket.AttendeeEmail = new(types.BigInt).SetBigInt(types.StringToField(t.AttendeeEmail))
	}
	return claim
}

// Prove builds the full witness for req and returns a PCD carrying the
// groth16 proof.
func Prove(pk groth16.ProvingKey, req *ProofRequest) (*credential.PCD, error) {
	cs, err := Compile()
	if err != nil {
		return nil, err
	}
	claim := req.Claim()
	assignment := publicAssignment(claim, req.Ticket.Signer)
	assignment.TicketID = types.UUIDToField(req.Ticket.ID)
	assignment.AttendeeEmail = types.StringToField(req.Ticket.AttendeeEmail)
	assignment.IdentityNullifier = req.Identity.Nullifier
	assignment.IdentityTrapdoor = req.Identity.Trapdoor
	assignment.Signature.Assign(circuit.CurveID, req.Ticket.Signature)

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(cs, pk, witness)
	if err != nil {
		return nil, fmt.Errorf("prove ticket: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode proof: %w", err)
	}
	return &credential.PCD{
		ID:    uuid.NewString(),
		Claim: claim,
		Proof: buf.Bytes(),
	}, nil
}
