package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/types"
)

// PCD holds a serialized credential. On the wire it is either a JSON string
// with the serialized envelope or the envelope object itself.
type PCD []byte

// UnmarshalJSON accepts a JSON string or a raw JSON object.
func (p *PCD) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PCD(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	*p = append(PCD(nil), data...)
	return nil
}

// MarshalJSON encodes the PCD as a JSON string.
func (p PCD) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// VoteRequest is the body of POST /verify and POST /vote. Votes and Proof
// are ignored by /verify.
type VoteRequest struct {
	PCD     PCD              `json:"pcd"`
	Address string           `json:"address"`
	Votes   []types.HexBytes `json:"votes,omitempty"`
	Proof   types.HexBytes   `json:"proof,omitempty"`
}

// BallotProofScheme names the validity proof a ballot must carry: per option
// a disjunctive Chaum-Pedersen proof that it encrypts zero or the vote
// weight, and one that all options add up to the weight.
const BallotProofScheme = "elgamal-bjj-cds-poseidon"

// PublicParams is everything a client needs to build an accepted ballot.
type PublicParams struct {
	EncryptionKey types.HexBytes `json:"encryptionKey"`
	Options       int            `json:"options"`
	Weight        uint64         `json:"weight"`
	BallotProof   string         `json:"ballotProof"`
	// VerifyingKey is the verifying key of the credential circuit, when
	// the node checks groth16 proofs.
	VerifyingKey types.HexBytes `json:"verifyingKey,omitempty"`
}

// MessageResponse is returned on success.
type MessageResponse struct {
	Message   string         `json:"message"`
	Nullifier types.HexBytes `json:"nullifier,omitempty"`
}

// InfoResponse describes the epoch served by the node.
type InfoResponse struct {
	EventID           uuid.UUID      `json:"eventId"`
	Options           int            `json:"options"`
	Weight            uint64         `json:"weight"`
	ExternalNullifier *types.BigInt  `json:"externalNullifier"`
	EncryptionKey     types.HexBytes `json:"encryptionKey"`
	Issuers           []string       `json:"issuers"`
	Open              bool           `json:"open"`
	Ballots           uint64         `json:"ballots"`
	Admitted          uint64         `json:"admitted"`
	Rejected          uint64         `json:"rejected"`
	CreatedAt         time.Time      `json:"createdAt"`
	ClosedAt          time.Time      `json:"closedAt,omitzero"`
}

// TallyResponse holds the encrypted tallies, one ciphertext per option.
type TallyResponse struct {
	EventID uuid.UUID        `json:"eventId"`
	Open    bool             `json:"open"`
	Weight  uint64           `json:"weight"`
	Ballots uint64           `json:"ballots"`
	Tallies []types.HexBytes `json:"tallies"`
}
