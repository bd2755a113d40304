package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactEncoding selects the serialization of stored artifacts.
type ArtifactEncoding int

const (
	// ArtifactEncodingCBOR is the deterministic CBOR encoding used for
	// everything written to the database.
	ArtifactEncodingCBOR ArtifactEncoding = iota
	// ArtifactEncodingJSON is used for exports meant to be read by humans.
	ArtifactEncodingJSON
)

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeArtifact encodes a with the given encoding, CBOR by default.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	enc := ArtifactEncodingCBOR
	if len(encoding) > 0 {
		enc = encoding[0]
	}
	switch enc {
	case ArtifactEncodingCBOR:
		data, err := cborEncMode.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode artifact: %w", err)
		}
		return data, nil
	case ArtifactEncodingJSON:
		return json.Marshal(a)
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %d", enc)
	}
}

// DecodeArtifact decodes data into out with the given encoding, CBOR by
// default.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	enc := ArtifactEncodingCBOR
	if len(encoding) > 0 {
		enc = encoding[0]
	}
	switch enc {
	case ArtifactEncodingCBOR:
		return cbor.Unmarshal(data, out)
	case ArtifactEncodingJSON:
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unknown artifact encoding: %d", enc)
	}
}
