package admission

import (
	"errors"

	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/storage"
)

// Admission errors. All of them are client facing: the request was refused
// and no nullifier was consumed, except for ErrAlreadyUsed where the
// nullifier had been consumed by an earlier request.
var (
	ErrMalformedProof    = credential.ErrMalformedProof
	ErrInvalidProof      = credential.ErrInvalidProof
	ErrUntrustedIssuer   = errors.New("untrusted issuer")
	ErrWatermarkMismatch = errors.New("watermark mismatch")
	ErrWrongEvent        = errors.New("credential not valid for this event")
	// ErrAlreadyUsed is the error registries return from Record when the
	// nullifier is present.
	ErrAlreadyUsed = storage.ErrNullifierAlreadyUsed

	// ErrInvalidTicket is returned when redeeming a ticket that is unknown
	// to the controller, expired or already redeemed.
	ErrInvalidTicket = errors.New("invalid or expired admission ticket")
)

// Stable machine codes for admission failures.
const (
	CodeMalformedProof    = 40101
	CodeInvalidProof      = 40102
	CodeUntrustedIssuer   = 40103
	CodeWatermarkMismatch = 40104
	CodeWrongEvent        = 40105
	CodeAlreadyUsed       = 40106
)

var codes = []struct {
	err    error
	code   int
	reason string
}{
	{ErrMalformedProof, CodeMalformedProof, "MalformedProof"},
	{ErrInvalidProof, CodeInvalidProof, "InvalidProof"},
	{ErrUntrustedIssuer, CodeUntrustedIssuer, "UntrustedIssuer"},
	{ErrWatermarkMismatch, CodeWatermarkMismatch, "WatermarkMismatch"},
	{ErrWrongEvent, CodeWrongEvent, "WrongEvent"},
	{ErrAlreadyUsed, CodeAlreadyUsed, "AlreadyUsed"},
}

// Code returns the machine code of an admission error, or 0 if err is not
// one.
func Code(err error) int {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return 0
}

// Reason returns the short name of an admission error, or "" if err is not
// one.
func Reason(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.reason
		}
	}
	return ""
}

// IsRejection reports whether err is a client facing admission failure.
func IsRejection(err error) bool {
	return Code(err) != 0
}
