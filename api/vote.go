package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/ballotbox"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/tally"
)

// verify checks that a credential would be admitted, without consuming it.
// POST /verify
func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if err := decodeBody(w, r, req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(req.PCD) == 0 {
		ErrMissingPCD.Write(w)
		return
	}
	if _, err := a.box.Verify(r.Context(), &ballotbox.VerifyRequest{
		PCD:     req.PCD,
		Address: req.Address,
	}); err != nil {
		a.writeBallotBoxError(w, err)
		return
	}
	httpWriteJSON(w, &MessageResponse{Message: "PCD verified!"})
}

// vote admits a credential and accumulates its encrypted ballot.
// POST /vote
func (a *API) vote(w http.ResponseWriter, r *http.Request) {
	req := &VoteRequest{}
	if err := decodeBody(w, r, req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(req.PCD) == 0 {
		ErrMissingPCD.Write(w)
		return
	}
	votes := make([][]byte, len(req.Votes))
	for i, v := range req.Votes {
		votes[i] = v
	}
	receipt, err := a.box.Cast(r.Context(), &ballotbox.VoteRequest{
		VerifyRequest: ballotbox.VerifyRequest{
			PCD:     req.PCD,
			Address: req.Address,
		},
		Votes: votes,
		Proof: req.Proof,
	})
	if err != nil {
		a.writeBallotBoxError(w, err)
		return
	}
	httpWriteJSON(w, &MessageResponse{
		Message:   "Vote counted!",
		Nullifier: receipt.Nullifier,
	})
}

// writeBallotBoxError answers with the API error matching err and counts
// it.
func (a *API) writeBallotBoxError(w http.ResponseWriter, err error) {
	apiErr := ballotBoxError(err)
	a.metrics.failure(apiErr)
	apiErr.Write(w)
}

// ballotBoxError maps a ballot box error to its API error. Admission
// rejections carry their reason, server side failures only a generic
// message.
func ballotBoxError(err error) Error {
	if apiErr, ok := admissionErrors[admission.Code(err)]; ok {
		return apiErr
	}
	switch {
	case errors.Is(err, ballotbox.ErrVotingClosed):
		return ErrVotingClosed
	case errors.Is(err, tally.ErrShapeMismatch):
		return ErrShapeMismatch.WithErr(err)
	case errors.Is(err, ballotbox.ErrMalformedBallot):
		return ErrMalformedBallot.WithErr(err)
	case errors.Is(err, ballotbox.ErrMalformedRequest):
		return ErrMalformedAddress.WithErr(err)
	case errors.Is(err, tally.ErrAggregationFailure):
		log.Errorw(err, "ballot aggregation failed")
		return ErrAggregationFailure
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warnw("request cancelled during admission", "error", err)
		return ErrGenericInternalServerError
	default:
		log.Errorw(err, "unexpected ballot box error")
		return ErrGenericInternalServerError
	}
}
