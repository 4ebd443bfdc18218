package localstore_test

import (
	"io"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/localstore"
)

func TestPutBlobAndRead(t *testing.T) {
	s, err := localstore.Open(t.TempDir())
	qt.Assert(t, qt.IsNil(err))

	data := []byte("hello")
	d := digestutil.FromBytes(data)
	qt.Assert(t, qt.IsNil(s.PutBlob(d, data)))
	qt.Assert(t, qt.IsTrue(s.HasBlob(d)))

	r, err := s.BlobReader(d)
	qt.Assert(t, qt.IsNil(err))
	defer r.Close()
	got, err := io.ReadAll(r)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(got, data))
}

func TestPutBlobTwiceIsNoop(t *testing.T) {
	s, err := localstore.Open(t.TempDir())
	qt.Assert(t, qt.IsNil(err))

	data := []byte("repeat")
	d := digestutil.FromBytes(data)
	qt.Assert(t, qt.IsNil(s.PutBlob(d, data)))
	qt.Assert(t, qt.IsNil(s.PutBlob(d, data)))
}

func TestSaveManifestIsByteExact(t *testing.T) {
	s, err := localstore.Open(t.TempDir())
	qt.Assert(t, qt.IsNil(err))

	body := []byte(`{"schemaVersion":2,"layers":[]}`)
	d, err := s.SaveManifest(body)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(d, digestutil.FromBytes(body)))

	r, err := s.ManifestReader(d)
	qt.Assert(t, qt.IsNil(err))
	defer r.Close()
	got, err := io.ReadAll(r)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(got, body))
}

func TestMissingBlobNotFound(t *testing.T) {
	s, err := localstore.Open(t.TempDir())
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.IsFalse(s.HasBlob("sha256:0000000000000000000000000000000000000000000000000000000000000000")))
	_, err = s.BlobReader("sha256:0000000000000000000000000000000000000000000000000000000000000000")
	qt.Assert(t, qt.IsNotNil(err))
}
