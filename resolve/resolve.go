// Package resolve opens readers over content that may live in the
// local store, the remote backend, or both, per spec §4.9: a local
// digest is read from the local store; a remote content id is fetched
// from the remote gateway, falling back to a local copy if that fails.
//
// Grounded on ociunify/unify.go's runReadSequential shape (try one
// source, fall back to the other on error) repurposed from "two
// registries" to "local store, remote store".
package resolve

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/localstore"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/regerror"
	"github.com/ipregistry/ociregistry/remotesvc"
)

// RemoteFetchTimeout bounds how long a remote gateway fetch is given
// before falling back to the local store, per spec §4.9.
const RemoteFetchTimeout = 10 * time.Second

// Resolver opens readers for blobs and manifests, given a
// mappingindex.ContentRef that names where the bytes currently live.
type Resolver struct {
	local  *localstore.Store
	remote remotesvc.Fetcher
}

// New returns a Resolver reading blobs and manifests out of local
// and remote.
func New(local *localstore.Store, remote remotesvc.Fetcher) *Resolver {
	return &Resolver{local: local, remote: remote}
}

// OpenBlob opens a reader for a blob identified by ref, falling back
// to fallbackDigest in the local store if ref names remote content
// and the remote fetch fails.
func (r *Resolver) OpenBlob(ctx context.Context, ref mappingindex.ContentRef, fallbackDigest digestutil.Digest) (io.ReadCloser, error) {
	return r.open(ctx, ref, fallbackDigest, r.local.BlobReader, r.local.HasBlob)
}

// OpenManifest opens a reader for a manifest identified by ref,
// falling back to fallbackDigest in the local store if ref names
// remote content and the remote fetch fails.
func (r *Resolver) OpenManifest(ctx context.Context, ref mappingindex.ContentRef, fallbackDigest digestutil.Digest) (io.ReadCloser, error) {
	return r.open(ctx, ref, fallbackDigest, r.local.ManifestReader, r.local.HasManifest)
}

func (r *Resolver) open(
	ctx context.Context,
	ref mappingindex.ContentRef,
	fallbackDigest digestutil.Digest,
	localReader func(digestutil.Digest) (io.ReadCloser, error),
	localHas func(digestutil.Digest) bool,
) (io.ReadCloser, error) {
	if ref.IsLocal() {
		return localReader(ref.Digest())
	}
	rc, err := r.fetchRemote(ctx, ref.String())
	if err == nil {
		return rc, nil
	}
	if fallbackDigest != "" && localHas(fallbackDigest) {
		return localReader(fallbackDigest)
	}
	return nil, regerror.ErrNotFound("remote content %s unavailable and no local fallback: %v", ref, err)
}

func (r *Resolver) fetchRemote(ctx context.Context, contentID string) (io.ReadCloser, error) {
	if r.remote == nil {
		return nil, fmt.Errorf("no remote fetcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, RemoteFetchTimeout)
	rc, err := r.remote.FetchByContentID(ctx, contentID)
	if err != nil {
		cancel()
		return nil, err
	}
	// The body is read after this function returns, so don't cancel
	// here: the same deadline keeps applying while the caller reads,
	// and its resources are released when the caller closes it.
	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

// cancelOnClose ties a context cancellation to the lifetime of a
// reader so the timeout's resources are released exactly once, when
// the caller is done reading rather than when fetchRemote returns.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
