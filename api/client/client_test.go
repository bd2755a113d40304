package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/ballotbox"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/db/metadb"
	"github.com/vocdoni/ticketvote/internal/testutil"
	"github.com/vocdoni/ticketvote/storage"
	"github.com/vocdoni/ticketvote/tally"
	"github.com/vocdoni/ticketvote/types"
)

func TestClient(t *testing.T) {
	c := qt.New(t)
	eventID := uuid.New()
	issuer := testutil.NewIssuer(t)
	pk, _ := testutil.Keys(t)

	stg := storage.New(metadb.NewTest(t))
	combiner := elgamal.Combiner{}
	_, err := stg.InitEpoch(&types.Epoch{
		EventID:           eventID,
		Options:           2,
		ExternalNullifier: new(types.BigInt).SetBigInt(testutil.ExternalNullifier),
		EncryptionKey:     pk.Marshal(),
	}, tally.ZeroTallies(combiner, 2))
	c.Assert(err, qt.IsNil)
	ctrl, err := admission.New(admission.Config{
		Verifier:          testutil.TrustingVerifier{},
		Issuers:           credential.NewTrustedIssuers(issuer.Signer()),
		Registry:          stg,
		ExternalNullifier: testutil.ExternalNullifier,
	})
	c.Assert(err, qt.IsNil)
	agg, err := tally.New(combiner, stg, ctrl)
	c.Assert(err, qt.IsNil)
	box, err := ballotbox.New(stg, ctrl, agg, combiner, testutil.BallotVerifier(t, pk))
	c.Assert(err, qt.IsNil)
	node, err := api.New(&api.APIConfig{
		BallotBox:    box,
		PublicKey:    pk.Marshal(),
		VerifyingKey: []byte("vk"),
		AdminToken:   "token",
	})
	c.Assert(err, qt.IsNil)
	srv := httptest.NewServer(node.Router())
	defer srv.Close()

	cli, err := New(srv.URL)
	c.Assert(err, qt.IsNil)

	key, err := cli.PublicKey()
	c.Assert(err, qt.IsNil)
	c.Assert(key, qt.DeepEquals, pk.Marshal())
	params, err := cli.PublicParams()
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(params.VerifyingKey), qt.DeepEquals, []byte("vk"))
	c.Assert([]byte(params.EncryptionKey), qt.DeepEquals, pk.Marshal())
	c.Assert(params.Weight, qt.Equals, uint64(1))
	c.Assert(params.Options, qt.Equals, 2)

	cred := testutil.NewCredential(t, issuer, eventID)
	_, err = cli.Verify(cred.Serialized(t), cred.Address.Hex())
	c.Assert(err, qt.IsNil)
	votes, proof := testutil.Vote(t, pk, eventID, cred.Address, 2, 1)
	stuffed, err := elgamal.EncryptBallot(pk, []uint64{0, 50}, nil)
	c.Assert(err, qt.IsNil)
	_, err = cli.Vote(cred.Serialized(t), cred.Address.Hex(), stuffed.Marshal(), proof)
	var se *StatusError
	c.Assert(errors.As(err, &se), qt.IsTrue)
	c.Assert(se.Code, qt.Equals, api.ErrMalformedBallot.Code)

	resp, err := cli.Vote(cred.Serialized(t), cred.Address.Hex(), votes, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(resp.Nullifier, qt.HasLen, 32)

	_, err = cli.Vote(cred.Serialized(t), cred.Address.Hex(), votes, proof)
	c.Assert(errors.As(err, &se), qt.IsTrue)
	c.Assert(se.Status, qt.Equals, http.StatusUnauthorized)
	c.Assert(se.Code, qt.Equals, admission.CodeAlreadyUsed)

	info, err := cli.Info()
	c.Assert(err, qt.IsNil)
	c.Assert(info.Ballots, qt.Equals, uint64(1))

	_, err = cli.CloseEpoch()
	c.Assert(errors.As(err, &se), qt.IsTrue)
	c.Assert(se.Status, qt.Equals, http.StatusForbidden)
	cli.SetAdminToken("token")
	closed, err := cli.CloseEpoch()
	c.Assert(err, qt.IsNil)
	c.Assert(closed.Open, qt.IsFalse)

	tallies, err := cli.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies.Tallies, qt.DeepEquals, closed.Tallies)
}
