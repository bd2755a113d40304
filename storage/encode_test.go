package storage

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestEncodeDecodeArtifact(t *testing.T) {
	c := qt.New(t)
	record := NullifierRecord{Status: NullifierCounted, AdmittedAt: 1700000000, CountedAt: 1700000042}

	for _, enc := range []ArtifactEncoding{ArtifactEncodingCBOR, ArtifactEncodingJSON} {
		encoded, err := EncodeArtifact(record, enc)
		c.Assert(err, qt.IsNil)
		var decoded NullifierRecord
		c.Assert(DecodeArtifact(encoded, &decoded, enc), qt.IsNil)
		c.Assert(decoded, qt.DeepEquals, record)
	}

	c.Run("deterministic", func(c *qt.C) {
		a, err := EncodeArtifact(map[string]int{"b": 2, "a": 1, "c": 3})
		c.Assert(err, qt.IsNil)
		b, err := EncodeArtifact(map[string]int{"c": 3, "a": 1, "b": 2})
		c.Assert(err, qt.IsNil)
		c.Assert(a, qt.DeepEquals, b)
	})

	c.Run("invalid encoding", func(c *qt.C) {
		_, err := EncodeArtifact(record, ArtifactEncoding(100))
		c.Assert(err, qt.IsNotNil)
		c.Assert(DecodeArtifact([]byte{0xa0}, &NullifierRecord{}, ArtifactEncoding(100)), qt.IsNotNil)
	})
}
