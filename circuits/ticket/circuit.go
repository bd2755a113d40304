// Package ticket defines the zero-knowledge circuit proving possession of an
// issuer-signed event ticket. The proof reveals the issuer key, the event and
// product ids, optionally the attendee email, a nullifier bound to an external
// context and a watermark chosen by the holder. The ticket id and the holder
// identity secrets stay private.
package ticket

import (
	tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/twistededwards"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/signature/eddsa"
)

// CurveID is the twisted Edwards curve of the issuer keys, defined over the
// BN254 scalar field.
const CurveID = tedwards.BN254

// Circuit is the ticket ownership statement. Public inputs are ordered as
// declared.
type Circuit struct {
	Signer            eddsa.PublicKey   `gnark:",public"`
	NullifierHash     frontend.Variable `gnark:",public"`
	ExternalNullifier frontend.Variable `gnark:",public"`
	Watermark         frontend.Variable `gnark:",public"`
	EventID           frontend.Variable `gnark:",public"`
	ProductID         frontend.Variable `gnark:",public"`
	RevealEmail       frontend.Variable `gnark:",public"`
	RevealedEmail     frontend.Variable `gnark:",public"`

	TicketID          frontend.Variable
	AttendeeEmail     frontend.Variable
	IdentityNullifier frontend.Variable
	IdentityTrapdoor  frontend.Variable
	Signature         eddsa.Signature
}

// Define declares the circuit constraints.
func (c *Circuit) Define(api frontend.API) error {
	curve, err := twistededwards.NewEdCurve(api, CurveID)
	if err != nil {
		return err
	}
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// identity commitment = H(nullifier, trapdoor)
	h.Write(c.IdentityNullifier, c.IdentityTrapdoor)
	commitment := h.Sum()

	// the issuer signed H(ticketID, eventID, productID, email, commitment)
	h.Reset()
	h.Write(c.TicketID, c.EventID, c.ProductID, c.AttendeeEmail, commitment)
	msg := h.Sum()
	h.Reset()
	if err := eddsa.Verify(curve, c.Signature, msg, c.Signer, &h); err != nil {
		return err
	}

	// nullifier = H(identityNullifier, externalNullifier)
	h.Reset()
	h.Write(c.IdentityNullifier, c.ExternalNullifier)
	api.AssertIsEqual(c.NullifierHash, h.Sum())

	api.AssertIsBoolean(c.RevealEmail)
	api.AssertIsEqual(c.RevealedEmail, api.Select(c.RevealEmail, c.AttendeeEmail, 0))

	// every proof is bound to a holder, zero is no holder's watermark
	api.AssertIsDifferent(c.Watermark, 0)
	return nil
}
