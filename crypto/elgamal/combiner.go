package elgamal

import "fmt"

// Combiner adds serialized ciphertexts. It never needs the secret key.
type Combiner struct{}

// Zero returns the serialized identity ciphertext.
func (Combiner) Zero() []byte {
	return Zero().Marshal()
}

// Validate checks that ct decodes to two subgroup points.
func (Combiner) Validate(ct []byte) error {
	_, err := UnmarshalCiphertext(ct)
	return err
}

// Combine returns the serialized homomorphic sum of a and b.
func (Combiner) Combine(a, b []byte) ([]byte, error) {
	ca, err := UnmarshalCiphertext(a)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	cb, err := UnmarshalCiphertext(b)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	return Add(ca, cb).Marshal(), nil
}
