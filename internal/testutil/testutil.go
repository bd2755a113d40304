// Package testutil builds issuers, credentials and ballots for tests.
package testutil

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/credential/ticket"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/types"
	"github.com/vocdoni/ticketvote/util"
)

// ExternalNullifier is the voting scope used by tests.
var ExternalNullifier = big.NewInt(8128)

// TrustingVerifier accepts any well formed PCD whose proof does not start
// with a zero byte, without checking the proof itself.
type TrustingVerifier struct{}

func (TrustingVerifier) Verify(ctx context.Context, raw []byte) (*credential.VerifiedClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pcd, err := credential.Deserialize(raw)
	if err != nil {
		return nil, err
	}
	if pcd.Proof[0] == 0 {
		return nil, credential.ErrInvalidProof
	}
	return pcd.VerifiedClaim()
}

// NewIssuer returns a fresh ticket issuer.
func NewIssuer(t testing.TB) *ticket.Issuer {
	issuer, err := ticket.NewIssuer(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return issuer
}

// RandomAddress returns a random wallet address.
func RandomAddress() common.Address {
	return common.BytesToAddress(util.RandomBytes(common.AddressLength))
}

// Credential describes a holder and the proof request it would submit.
type Credential struct {
	Identity *ticket.Identity
	Ticket   *ticket.Ticket
	Address  common.Address
	Request  *ticket.ProofRequest
}

// NewCredential issues a ticket for eventID and prepares a proof request
// bound to a random wallet address.
func NewCredential(t testing.TB, issuer *ticket.Issuer, eventID uuid.UUID) *Credential {
	id := ticket.NewIdentity()
	tk, err := issuer.Issue(eventID, uuid.New(), "attendee@example.org", id.Commitment())
	if err != nil {
		t.Fatal(err)
	}
	addr := RandomAddress()
	return &Credential{
		Identity: id,
		Ticket:   tk,
		Address:  addr,
		Request: &ticket.ProofRequest{
			Ticket:            tk,
			Identity:          id,
			ExternalNullifier: ExternalNullifier,
			Watermark:         types.AddressToField(addr),
		},
	}
}

// PCD returns the credential as a PCD with a fake proof, accepted by
// TrustingVerifier.
func (c *Credential) PCD() *credential.PCD {
	proof := util.RandomBytes(32)
	proof[0] = 1
	return &credential.PCD{
		ID:    uuid.NewString(),
		Claim: c.Request.Claim(),
		Proof: proof,
	}
}

// Serialized returns the serialized envelope of PCD.
func (c *Credential) Serialized(t testing.TB) []byte {
	raw, err := c.PCD().Serialize()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// Ballot encrypts a one-hot vote for choice.
func Ballot(t testing.TB, pk *elgamal.PublicKey, options, choice int) [][]byte {
	weights, err := elgamal.OneHot(options, choice, 1)
	if err != nil {
		t.Fatal(err)
	}
	k, err := elgamal.RandK()
	if err != nil {
		t.Fatal(err)
	}
	ballot, err := elgamal.EncryptBallot(pk, weights, k)
	if err != nil {
		t.Fatal(err)
	}
	return ballot.Marshal()
}

// Vote encrypts a weight 1 vote for choice with its validity proof, bound to
// the event and wallet address of the request carrying it.
func Vote(t testing.TB, pk *elgamal.PublicKey, eventID uuid.UUID, address common.Address,
	options, choice int,
) (votes [][]byte, proof []byte) {
	ballot, bp, err := elgamal.EncryptVote(pk, options, choice, 1, nil,
		types.BallotContext(eventID, types.AddressToField(address)))
	if err != nil {
		t.Fatal(err)
	}
	return ballot.Marshal(), bp.Marshal()
}

// BallotVerifier returns the verifier of weight 1 ballots under pk.
func BallotVerifier(t testing.TB, pk *elgamal.PublicKey) *elgamal.BallotVerifier {
	v, err := elgamal.NewBallotVerifier(pk, 1)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// Keys returns a fresh ElGamal key pair.
func Keys(t testing.TB) (*elgamal.PublicKey, *elgamal.SecretKey) {
	pk, sk, err := elgamal.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return pk, sk
}
