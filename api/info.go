package api

import (
	"net/http"

	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

// publicKeyHandler serves the ElGamal public key as raw bytes.
// GET /public-key
func (a *API) publicKeyHandler(w http.ResponseWriter, _ *http.Request) {
	httpWriteBinary(w, a.publicKey)
}

// publicParams serves the parameters of an accepted ballot and the
// verifying key of the credential circuit.
// GET /public-key/params
func (a *API) publicParams(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, &PublicParams{
		EncryptionKey: a.publicKey,
		Options:       a.box.Options(),
		Weight:        a.box.Weight(),
		BallotProof:   BallotProofScheme,
		VerifyingKey:  a.verifyingKey,
	})
}

// info returns the epoch served by the node.
// GET /info
func (a *API) info(w http.ResponseWriter, _ *http.Request) {
	epoch, err := a.box.Epoch()
	if err != nil {
		log.Errorw(err, "could not load epoch")
		ErrGenericInternalServerError.Write(w)
		return
	}
	admitted, rejected := a.box.Stats()
	httpWriteJSON(w, &InfoResponse{
		EventID:           epoch.EventID,
		Options:           epoch.Options,
		Weight:            epoch.VoteWeight(),
		ExternalNullifier: epoch.ExternalNullifier,
		EncryptionKey:     epoch.EncryptionKey,
		Issuers:           a.issuers,
		Open:              epoch.Open,
		Ballots:           epoch.Ballots,
		Admitted:          admitted,
		Rejected:          rejected,
		CreatedAt:         epoch.CreatedAt,
		ClosedAt:          epoch.ClosedAt,
	})
}

// tally returns the current encrypted tallies.
// GET /tally
func (a *API) tally(w http.ResponseWriter, _ *http.Request) {
	epoch, err := a.box.Epoch()
	if err != nil {
		log.Errorw(err, "could not load epoch")
		ErrGenericInternalServerError.Write(w)
		return
	}
	httpWriteJSON(w, &TallyResponse{
		EventID: epoch.EventID,
		Open:    epoch.Open,
		Weight:  epoch.VoteWeight(),
		Ballots: epoch.Ballots,
		Tallies: hexTallies(a.box.Tallies()),
	})
}

// closeEpoch stops accepting ballots and returns the final tallies.
// POST /epoch/close
func (a *API) closeEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := a.box.Close(r.Context())
	if epoch == nil {
		log.Errorw(err, "could not close epoch")
		ErrGenericInternalServerError.Write(w)
		return
	}
	if err != nil {
		// the epoch is closed, only an export hook failed
		log.Warnw("epoch closed with errors", "error", err)
	}
	httpWriteJSON(w, &TallyResponse{
		EventID: epoch.EventID,
		Open:    epoch.Open,
		Weight:  epoch.VoteWeight(),
		Ballots: epoch.Ballots,
		Tallies: hexTallies(a.box.Tallies()),
	})
}

func hexTallies(tallies [][]byte) []types.HexBytes {
	out := make([]types.HexBytes, len(tallies))
	for i, t := range tallies {
		out[i] = t
	}
	return out
}
