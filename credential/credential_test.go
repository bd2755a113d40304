package credential

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/types"
)

// issuer key of the original demo deployment
const (
	demoSignerX = "1ebfb986fbac5113f8e2c72286fe9362f8e7d211dbc68227a468d7b919e75003"
	demoSignerY = "10ec38f11baacad5535525bbe8e343074a483c051aa1616266f3b1df3fb7d204"
)

func TestTrustedIssuers(t *testing.T) {
	c := qt.New(t)

	issuers, err := ParseTrustedIssuers([]string{demoSignerX + ":" + demoSignerY})
	c.Assert(err, qt.IsNil)
	c.Assert(issuers.Len(), qt.Equals, 1)

	signer, err := ParseSigner("0x" + demoSignerX + ":0x" + demoSignerY)
	c.Assert(err, qt.IsNil)
	c.Assert(issuers.IsTrusted(signer), qt.IsTrue)

	// only one coordinate matching is not enough
	swapped, err := ParseSigner(demoSignerY + ":" + demoSignerX)
	c.Assert(err, qt.IsNil)
	c.Assert(issuers.IsTrusted(swapped), qt.IsFalse)

	c.Assert(issuers.IsTrusted(Signer{}), qt.IsFalse)

	for _, bad := range []string{"", "abc", "zz:01", "01:02:03"} {
		_, err := ParseSigner(bad)
		c.Assert(err, qt.IsNotNil, qt.Commentf("entry %q", bad))
	}
}

func TestDeserialize(t *testing.T) {
	c := qt.New(t)

	pcd := &PCD{
		ID: uuid.NewString(),
		Claim: PCDClaim{
			PartialTicket:     PartialTicket{EventID: uuid.New(), ProductID: uuid.New()},
			Signer:            [2]string{demoSignerX, demoSignerY},
			NullifierHash:     types.NewInt(0xabc123),
			ExternalNullifier: types.NewInt(1),
			Watermark:         types.NewInt(2),
		},
		Proof: []byte{1},
	}
	raw, err := pcd.Serialize()
	c.Assert(err, qt.IsNil)

	c.Run("envelope", func(c *qt.C) {
		dec, err := Deserialize(raw)
		c.Assert(err, qt.IsNil)
		c.Assert(dec.Claim.PartialTicket.EventID, qt.Equals, pcd.Claim.PartialTicket.EventID)

		vc, err := dec.VerifiedClaim()
		c.Assert(err, qt.IsNil)
		c.Assert(vc.NullifierHash, qt.HasLen, 32)
		c.Assert(vc.NullifierHash.Equal(types.NewInt(0xabc123).Bytes32()), qt.IsTrue)
	})

	c.Run("malformed", func(c *qt.C) {
		for _, in := range []string{
			``,
			`not json`,
			`{"type":"other","pcd":"{}"}`,
			`{"id":"x","claim":{}}`,
		} {
			_, err := Deserialize([]byte(in))
			c.Assert(errors.Is(err, ErrMalformedProof), qt.IsTrue, qt.Commentf("input %q", in))
		}
	})

	c.Run("value out of field", func(c *qt.C) {
		bad := *pcd
		bad.Claim.Watermark = new(types.BigInt).SetBigInt(types.FieldModulus)
		raw, err := bad.Serialize()
		c.Assert(err, qt.IsNil)
		_, err = Deserialize(raw)
		c.Assert(errors.Is(err, ErrMalformedProof), qt.IsTrue)
	})
}
