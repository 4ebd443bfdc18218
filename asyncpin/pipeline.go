// Package asyncpin runs the background half of every successful push:
// packing bytes for the remote backend and pinning them to the
// per-image dataset, then rewriting the mapping index so the entry
// moves from a local digest to a remote content id once the pin
// lands. None of this ever blocks the HTTP response that already
// went out.
//
// Grounded on spec.md §4.11/§9: detached background work captures only
// value types (bytes, names, a credential) rather than any
// request-scoped resource, and the goroutine-pair fire-and-report
// shape comes from the teacher's ociunify "both()" dispatch, reworked
// here as fire-and-forget with no result channel.
package asyncpin

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ipregistry/ociregistry/carpacker"
	"github.com/ipregistry/ociregistry/credential"
	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/regerror"
	"github.com/ipregistry/ociregistry/remotesvc"
)

// PinTimeout bounds how long one background pin is given before it's
// abandoned. The HTTP response this pin follows has already been
// sent; a stuck pin must not accumulate forever.
const PinTimeout = 2 * time.Minute

// Kind distinguishes which mapping table a pin result rewrites.
type Kind int

const (
	// KindBlob rewrites mappingindex's per-image blob table, keyed
	// by digest.
	KindBlob Kind = iota
	// KindManifest rewrites the (image, reference) entry, mirroring
	// KindBlob's behavior per spec.md §9's open-question resolution
	// (see SPEC_FULL.md).
	KindManifest
)

// Pipeline schedules and runs background pins.
type Pipeline struct {
	services *remotesvc.Manager
	log      *log.Logger
}

// New returns a Pipeline that pins through services, logging with
// log.
func New(services *remotesvc.Manager, logger *log.Logger) *Pipeline {
	return &Pipeline{services: services, log: logger}
}

// Schedule packs data synchronously (fast, CPU-bound -- the one
// suspension point that runs before this function returns) and, on
// success, fires a detached goroutine that acquires the remote
// ImageService for (cred, image) and pins it. On any failure, it logs
// and returns without touching idx: the mapping stays at the local
// digest, and the resolver serves it indefinitely from there.
//
// refs lists every mapping entry to rewrite once the (single) pin
// completes: a manifest is often reachable under both its tag and its
// own digest, and both keys should move to the same remote content-id
// without packing and pinning the bytes twice.
func (p *Pipeline) Schedule(kind Kind, cred credential.Credential, image string, refs []string, localDigest digestutil.Digest, data []byte, idx *mappingindex.Index) {
	payload, err := carpacker.Pack(data)
	if err != nil {
		p.log.Error("cannot pack bytes for remote pin", "image", image, "refs", refs, "err", err)
		return
	}

	go p.pin(kind, cred, image, refs, payload, idx)
}

func (p *Pipeline) pin(kind Kind, cred credential.Credential, image string, refs []string, payload carpacker.Payload, idx *mappingindex.Index) {
	ctx, cancel := context.WithTimeout(context.Background(), PinTimeout)
	defer cancel()

	svc, err := p.services.ServiceFor(ctx, cred, image)
	if err != nil {
		p.log.Error("cannot acquire remote service for pin", "image", image, "refs", refs, "err", err)
		return
	}

	metadata := map[string]string{"imageName": image}
	receipt, err := svc.Dataset.Pin(ctx, payload.Bytes, payload.ContentID, metadata)
	if err != nil {
		if regerror.IsInsufficientFunds(err) {
			p.log.Error("remote pin failed: insufficient funds, see funding docs", "image", image, "refs", refs, "err", err)
		} else {
			p.log.Error("remote pin failed", "image", image, "refs", refs, "err", err)
		}
		return
	}

	contentRef := mappingindex.RemoteRef(receipt.ContentID)
	for _, ref := range refs {
		var rewriteErr error
		switch kind {
		case KindBlob:
			rewriteErr = idx.RewriteBlobRef(image, ref, contentRef)
		case KindManifest:
			rewriteErr = idx.RewriteManifestRef(image, ref, contentRef)
		}
		if rewriteErr != nil {
			p.log.Error("cannot rewrite mapping after successful pin", "image", image, "ref", ref, "err", rewriteErr)
		}
	}
	p.log.Info("remote pin complete", "image", image, "refs", refs, "contentId", receipt.ContentID)
}
