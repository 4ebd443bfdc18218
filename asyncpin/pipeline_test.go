package asyncpin_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-quicktest/qt"

	"github.com/ipregistry/ociregistry/asyncpin"
	"github.com/ipregistry/ociregistry/credential"
	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/remotesvc"
)

type fakeBackend struct{}

func (fakeBackend) Initialize(ctx context.Context, cred string, rpcURL, warmStorageAddr string) (remotesvc.BaseService, error) {
	return fakeBase{}, nil
}

type fakeBase struct{}

func (fakeBase) CreateDataset(ctx context.Context, metadata map[string]string) (remotesvc.DatasetHandle, error) {
	return fakeDataset{}, nil
}
func (fakeBase) Teardown(ctx context.Context) error { return nil }

type fakeDataset struct{}

func (fakeDataset) Pin(ctx context.Context, payload []byte, contentID string, metadata map[string]string) (remotesvc.PinReceipt, error) {
	return remotesvc.PinReceipt{ContentID: "bafy" + contentID[:8]}, nil
}

func waitUntil(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestScheduleRewritesBlobRefOnSuccessfulPin(t *testing.T) {
	idx, err := mappingindex.Load(filepath.Join(t.TempDir(), "mapping.json"), false)
	qt.Assert(t, qt.IsNil(err))

	mgr := remotesvc.NewManager(fakeBackend{}, "", "", "test-registry")
	p := asyncpin.New(mgr, log.New(io.Discard))

	data := []byte("hello")
	d := digestutil.FromBytes(data)
	qt.Assert(t, qt.IsNil(idx.AddBlob("test/image", d.String(), mappingindex.LocalRef(d))))

	ref, _ := idx.LookupBlob("test/image", d.String())
	qt.Assert(t, qt.IsTrue(ref.IsLocal()))

	p.Schedule(asyncpin.KindBlob, credential.Credential("0xabc"), "test/image", []string{d.String()}, d, data, idx)

	waitUntil(t, func() bool {
		ref, ok := idx.LookupBlob("test/image", d.String())
		return ok && !ref.IsLocal()
	})
}

func TestScheduleRewritesManifestRefOnSuccessfulPin(t *testing.T) {
	idx, err := mappingindex.Load(filepath.Join(t.TempDir(), "mapping.json"), false)
	qt.Assert(t, qt.IsNil(err))

	mgr := remotesvc.NewManager(fakeBackend{}, "", "", "test-registry")
	p := asyncpin.New(mgr, log.New(io.Discard))

	data := []byte(`{"schemaVersion":2,"layers":[]}`)
	d := digestutil.FromBytes(data)
	qt.Assert(t, qt.IsNil(idx.AddManifest("test/image", "latest", mappingindex.LocalRef(d), nil)))

	// A manifest pushed by tag is also recorded under its own digest
	// (see ociserver's manifest-PUT handler); both keys should move
	// to the remote content-id from one pin.
	qt.Assert(t, qt.IsNil(idx.AddManifest("test/image", d.String(), mappingindex.LocalRef(d), nil)))

	p.Schedule(asyncpin.KindManifest, credential.Credential("0xabc"), "test/image", []string{"latest", d.String()}, d, data, idx)

	waitUntil(t, func() bool {
		tagRef, tagOK := idx.LookupManifest("test/image", "latest")
		digestRef, digestOK := idx.LookupManifest("test/image", d.String())
		return tagOK && !tagRef.IsLocal() && digestOK && !digestRef.IsLocal()
	})
}
