package credential

import (
	"fmt"
	"strings"

	"github.com/vocdoni/ticketvote/types"
)

// TrustedIssuers is the immutable set of issuer keys whose tickets are
// accepted. It is safe for concurrent use.
type TrustedIssuers struct {
	signers []Signer
}

// NewTrustedIssuers copies the given signers into a new set.
func NewTrustedIssuers(signers ...Signer) *TrustedIssuers {
	return &TrustedIssuers{signers: append([]Signer(nil), signers...)}
}

// ParseTrustedIssuers parses entries of the form "<x hex>:<y hex>".
func ParseTrustedIssuers(entries []string) (*TrustedIssuers, error) {
	signers := make([]Signer, 0, len(entries))
	for _, e := range entries {
		s, err := ParseSigner(e)
		if err != nil {
			return nil, err
		}
		signers = append(signers, s)
	}
	return NewTrustedIssuers(signers...), nil
}

// ParseSigner parses a single "<x hex>:<y hex>" entry.
func ParseSigner(entry string) (Signer, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) != 2 {
		return Signer{}, fmt.Errorf("invalid issuer %q, expected <x>:<y>", entry)
	}
	var s Signer
	for i, p := range parts {
		b, err := types.HexStringToHexBytes(p)
		if err != nil || len(b) == 0 || len(b) > 32 {
			return Signer{}, fmt.Errorf("invalid issuer coordinate %q", p)
		}
		s[i] = new(types.BigInt).SetBytes(b)
	}
	return s, nil
}

// IsTrusted reports whether signer exactly matches one of the keys.
func (t *TrustedIssuers) IsTrusted(signer Signer) bool {
	if signer[0] == nil || signer[1] == nil {
		return false
	}
	for _, s := range t.signers {
		if s.Equal(signer) {
			return true
		}
	}
	return false
}

// Len returns the number of trusted issuers.
func (t *TrustedIssuers) Len() int {
	return len(t.signers)
}
