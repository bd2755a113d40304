// Package ticket issues event tickets, proves their ownership with the
// circuits/ticket circuit and verifies those proofs as credential PCDs.
package ticket

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
	"github.com/google/uuid"
	circuit "github.com/vocdoni/ticketvote/circuits/ticket"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/types"
	"github.com/vocdoni/ticketvote/util"
)

// Identity holds the secrets of a ticket holder. Only its commitment is ever
// shown to the issuer.
type Identity struct {
	Nullifier *big.Int
	Trapdoor  *big.Int
}

// NewIdentity returns an identity with random secrets.
func NewIdentity() *Identity {
	return &Identity{
		Nullifier: util.RandomBigInt(big.NewInt(1), types.FieldModulus),
		Trapdoor:  util.RandomBigInt(big.NewInt(1), types.FieldModulus),
	}
}

// Commitment returns the public identity commitment.
func (id *Identity) Commitment() *big.Int {
	return circuit.IdentityCommitment(id.Nullifier, id.Trapdoor)
}

// Ticket is an issued ticket with the issuer signature.
type Ticket struct {
	ID                 uuid.UUID
	EventID            uuid.UUID
	ProductID          uuid.UUID
	AttendeeEmail      string
	IdentityCommitment *big.Int
	Signer             credential.Signer
	Signature          []byte
}

// Issuer signs tickets with an EdDSA key over the BN254 twisted Edwards
// curve.
type Issuer struct {
	key *eddsa.PrivateKey
}

// NewIssuer generates an issuer key from the given randomness source, or
// crypto/rand if nil.
func NewIssuer(r io.Reader) (*Issuer, error) {
	if r == nil {
		r = rand.Reader
	}
	key, err := eddsa.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate issuer key: %w", err)
	}
	return &Issuer{key: key}, nil
}

// LoadIssuer decodes an issuer private key produced by Issuer.Marshal.
func LoadIssuer(data []byte) (*Issuer, error) {
	key := new(eddsa.PrivateKey)
	if _, err := key.SetBytes(data); err != nil {
		return nil, fmt.Errorf("decode issuer key: %w", err)
	}
	return &Issuer{key: key}, nil
}

// Marshal encodes the private key.
func (i *Issuer) Marshal() []byte {
	return i.key.Bytes()
}

// Signer returns the public key coordinates identifying the issuer.
func (i *Issuer) Signer() credential.Signer {
	return signerOf(&i.key.PublicKey)
}

func signerOf(pub *eddsa.PublicKey) credential.Signer {
	x, y := new(big.Int), new(big.Int)
	pub.A.X.BigInt(x)
	pub.A.Y.BigInt(y)
	return credential.Signer{new(types.BigInt).SetBigInt(x), new(types.BigInt).SetBigInt(y)}
}

// Issue signs a new ticket for the holder of identityCommitment.
func (i *Issuer) Issue(eventID, productID uuid.UUID, email string, identityCommitment *big.Int) (*Ticket, error) {
	t := &Ticket{
		ID:                 uuid.New(),
		EventID:            eventID,
		ProductID:          productID,
		AttendeeEmail:      email,
		IdentityCommitment: identityCommitment,
		Signer:             i.Signer(),
	}
	sig, err := i.key.Sign(t.message().FillBytes(make([]byte, 32)), mimc.NewMiMC())
	if err != nil {
		return nil, fmt.Errorf("sign ticket: %w", err)
	}
	t.Signature = sig
	return t, nil
}

func (t *Ticket) message() *big.Int {
	return circuit.TicketMessage(
		types.UUIDToField(t.ID),
		types.UUIDToField(t.EventID),
		types.UUIDToField(t.ProductID),
		types.StringToField(t.AttendeeEmail),
		t.IdentityCommitment,
	)
}

// VerifySignature checks the issuer signature natively.
func (t *Ticket) VerifySignature(pub *eddsa.PublicKey) (bool, error) {
	return pub.Verify(t.Signature, t.message().FillBytes(make([]byte, 32)), mimc.NewMiMC())
}

// PublicKey returns the issuer public key.
func (i *Issuer) PublicKey() *eddsa.PublicKey {
	return &i.key.PublicKey
}
