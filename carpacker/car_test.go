package carpacker_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/ipregistry/ociregistry/carpacker"
)

func TestPackIsDeterministic(t *testing.T) {
	data := []byte("hello registry")
	p1, err := carpacker.Pack(data)
	qt.Assert(t, qt.IsNil(err))
	p2, err := carpacker.Pack(data)
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(p1.ContentID, p2.ContentID))
	qt.Assert(t, qt.DeepEquals(p1.Bytes, p2.Bytes))
}

func TestPackContentIDChangesWithData(t *testing.T) {
	p1, err := carpacker.Pack([]byte("first"))
	qt.Assert(t, qt.IsNil(err))
	p2, err := carpacker.Pack([]byte("second"))
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Not(qt.Equals(p1.ContentID, p2.ContentID)))
}

func TestPackContentIDIsCIDv1Raw(t *testing.T) {
	p, err := carpacker.Pack([]byte("payload"))
	qt.Assert(t, qt.IsNil(err))
	// CIDv1 raw-codec SHA-256 string identifiers always start with
	// "bafkrei" under the default base32 encoding.
	qt.Assert(t, qt.Equals(p.ContentID[:7], "bafkrei"))
}

func TestPackEmptyPayload(t *testing.T) {
	p, err := carpacker.Pack(nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Not(qt.Equals(p.ContentID, "")))
}
