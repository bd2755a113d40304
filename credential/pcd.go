package credential

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/types"
)

// PCDType identifies ticket proofs in the serialized envelope.
const PCDType = "ticketvote.zk-eddsa-ticket-pcd"

// SerializedPCD is the envelope clients post. PCD holds the JSON encoding of
// a PCD.
type SerializedPCD struct {
	Type string `json:"type"`
	PCD  string `json:"pcd"`
}

// PartialTicket holds the revealed ticket fields.
type PartialTicket struct {
	EventID       uuid.UUID     `json:"eventId"`
	ProductID     uuid.UUID     `json:"productId"`
	AttendeeEmail *types.BigInt `json:"attendeeEmail,omitempty"`
}

// PCDClaim is the public statement of a ticket proof.
type PCDClaim struct {
	PartialTicket     PartialTicket `json:"partialTicket"`
	Signer            [2]string     `json:"signer"`
	NullifierHash     *types.BigInt `json:"nullifierHash"`
	ExternalNullifier *types.BigInt `json:"externalNullifier"`
	Watermark         *types.BigInt `json:"watermark"`
}

// PCD is a proof carrying data object: a claim and the proof that it holds.
type PCD struct {
	ID    string         `json:"id"`
	Claim PCDClaim       `json:"claim"`
	Proof types.HexBytes `json:"proof"`
}

// Serialize wraps the PCD in its envelope.
func (p *PCD) Serialize() ([]byte, error) {
	inner, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SerializedPCD{Type: PCDType, PCD: string(inner)})
}

// Deserialize decodes a PCD, either wrapped in its envelope or bare. Every
// failure wraps ErrMalformedProof.
func Deserialize(raw []byte) (*PCD, error) {
	var env SerializedPCD
	if err := json.Unmarshal(raw, &env); err == nil && env.PCD != "" {
		if env.Type != "" && env.Type != PCDType {
			return nil, fmt.Errorf("%w: unsupported pcd type %q", ErrMalformedProof, env.Type)
		}
		raw = []byte(env.PCD)
	}
	pcd := new(PCD)
	if err := json.Unmarshal(raw, pcd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if err := pcd.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return pcd, nil
}

func (p *PCD) validate() error {
	c := p.Claim
	if c.NullifierHash == nil || c.ExternalNullifier == nil || c.Watermark == nil {
		return fmt.Errorf("missing claim fields")
	}
	for _, v := range []*types.BigInt{c.NullifierHash, c.ExternalNullifier, c.Watermark, c.PartialTicket.AttendeeEmail} {
		if v != nil && (v.MathBigInt().Sign() < 0 || v.MathBigInt().Cmp(types.FieldModulus) >= 0) {
			return fmt.Errorf("claim value out of field")
		}
	}
	if _, err := p.SignerKey(); err != nil {
		return err
	}
	if len(p.Proof) == 0 {
		return fmt.Errorf("empty proof")
	}
	return nil
}

// SignerKey decodes the signer coordinates.
func (p *PCD) SignerKey() (Signer, error) {
	return ParseSigner(p.Claim.Signer[0] + ":" + p.Claim.Signer[1])
}

// VerifiedClaim converts the claim of an already verified PCD.
func (p *PCD) VerifiedClaim() (*VerifiedClaim, error) {
	signer, err := p.SignerKey()
	if err != nil {
		return nil, err
	}
	c := p.Claim
	vc := &VerifiedClaim{
		Signer:            signer,
		NullifierHash:     c.NullifierHash.Bytes32(),
		ExternalNullifier: c.ExternalNullifier.MathBigInt(),
		Watermark:         c.Watermark.MathBigInt(),
		Claims: Claims{
			EventID:   c.PartialTicket.EventID,
			ProductID: c.PartialTicket.ProductID,
		},
	}
	if c.PartialTicket.AttendeeEmail != nil {
		vc.Claims.AttendeeEmail = c.PartialTicket.AttendeeEmail.MathBigInt()
	}
	return vc, nil
}
