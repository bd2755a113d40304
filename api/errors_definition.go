//nolint:lll
package api

import (
	"fmt"
	"net/http"

	"github.com/vocdoni/ticketvote/admission"
)

// Error codes in the 40001-49999 range are the user's fault, 50001-59999 are
// the server's fault. There is no correlation between Code and HTTP Status.
//
// NEVER change any of the current error codes, only append new errors. The
// admission codes are shared with the admission package and every rejection
// of a credential is answered with HTTP 401.
//
// Server side failures are answered with a generic message only.
var (
	ErrResourceNotFound = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrShapeMismatch    = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("ShapeMismatch: ballot shape mismatch")}
	ErrMalformedBallot  = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed ballot")}
	ErrMalformedBody    = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMissingPCD       = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("missing pcd")}
	ErrMalformedAddress = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed address")}
	ErrUnauthorized     = Error{Code: 40007, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("unauthorized")}
	ErrVotingClosed     = Error{Code: 40301, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("VotingClosed: voting is closed")}

	ErrMalformedProof    = Error{Code: admission.CodeMalformedProof, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("MalformedProof: malformed proof")}
	ErrInvalidProof      = Error{Code: admission.CodeInvalidProof, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("InvalidProof: proof is not valid")}
	ErrUntrustedIssuer   = Error{Code: admission.CodeUntrustedIssuer, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("UntrustedIssuer: ticket not signed by a trusted issuer")}
	ErrWatermarkMismatch = Error{Code: admission.CodeWatermarkMismatch, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("WatermarkMismatch: proof watermark does not match the address")}
	ErrWrongEvent        = Error{Code: admission.CodeWrongEvent, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("WrongEvent: ticket is not valid for this event")}
	ErrAlreadyUsed       = Error{Code: admission.CodeAlreadyUsed, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("AlreadyUsed: ticket already used to vote")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrAggregationFailure         = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("vote could not be counted")}
)

// admissionErrors maps admission codes to their API errors.
var admissionErrors = map[int]Error{
	admission.CodeMalformedProof:    ErrMalformedProof,
	admission.CodeInvalidProof:      ErrInvalidProof,
	admission.CodeUntrustedIssuer:   ErrUntrustedIssuer,
	admission.CodeWatermarkMismatch: ErrWatermarkMismatch,
	admission.CodeWrongEvent:        ErrWrongEvent,
	admission.CodeAlreadyUsed:       ErrAlreadyUsed,
}
