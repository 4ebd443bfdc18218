package ociserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/internal/ocirequest"
	"github.com/ipregistry/ociregistry/manifest"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/regerror"
)

// manifestDigestHeader is the Docker-Content-Digest value for a
// manifest HEAD, per spec.md §4.10: the local digest when the mapping
// stores one, else the remote content-id.
func manifestDigestHeader(idx *mappingindex.Index, image, reference string, ref mappingindex.ContentRef) string {
	if ref.IsLocal() {
		return ref.String()
	}
	if d, ok := idx.LookupManifestLocalDigest(image, reference); ok {
		return d
	}
	return ref.String()
}

// fallbackManifestDigest is the digest the resolver should try
// locally if ref names remote content and the remote fetch fails.
func fallbackManifestDigest(idx *mappingindex.Index, image, reference string, ref mappingindex.ContentRef) digestutil.Digest {
	if ref.IsLocal() {
		return ref.Digest()
	}
	if strings.HasPrefix(reference, "sha256:") {
		return digestutil.Digest(reference)
	}
	if d, ok := idx.LookupManifestLocalDigest(image, reference); ok {
		return digestutil.Digest(d)
	}
	return ""
}

func (r *Registry) handleManifestHead(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	ref, ok := r.index.LookupManifest(rreq.Name, rreq.Ref)
	if !ok {
		return regerror.ErrNotFound("manifest %s:%s not found", rreq.Name, rreq.Ref)
	}
	w.Header().Set("Docker-Content-Digest", manifestDigestHeader(r.index, rreq.Name, rreq.Ref, ref))
	w.WriteHeader(http.StatusOK)
	return nil
}

func (r *Registry) handleManifestGet(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	ref, ok := r.index.LookupManifest(rreq.Name, rreq.Ref)
	if !ok {
		return regerror.ErrNotFound("manifest %s:%s not found", rreq.Name, rreq.Ref)
	}
	fallback := fallbackManifestDigest(r.index, rreq.Name, rreq.Ref, ref)
	rc, err := r.resolver.OpenManifest(req.Context(), ref, fallback)
	if err != nil {
		return regerror.ErrNotFound("cannot read manifest %s:%s: %v", rreq.Name, rreq.Ref, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("cannot read manifest body: %w", err)
	}
	w.Header().Set("Content-Type", manifest.ContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Docker-Content-Digest", digestutil.FromBytes(data).String())
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	return err
}

func (r *Registry) handleBlobHead(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	if _, ok := r.index.LookupBlob(rreq.Name, rreq.Digest); !ok {
		return regerror.ErrNotFound("blob %s not found", rreq.Digest)
	}
	if d, err := digestutil.Parse(rreq.Digest); err == nil && r.store.HasBlob(d) {
		if size, err := r.store.Size(d); err == nil {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
	}
	w.Header().Set("Docker-Content-Digest", rreq.Digest)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (r *Registry) handleBlobGet(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	ref, ok := r.index.LookupBlob(rreq.Name, rreq.Digest)
	if !ok {
		return regerror.ErrNotFound("blob %s not found", rreq.Digest)
	}

	// Range reads only ever apply to bytes we actually hold locally;
	// a remote content-addressed fetch is whole-object per spec §4.9.
	if rangeHeader := req.Header.Get("Range"); rangeHeader != "" && ref.IsLocal() {
		return r.handleBlobRangeGet(w, rangeHeader, ref.Digest())
	}

	fallback := digestutil.Digest(rreq.Digest)
	rc, err := r.resolver.OpenBlob(req.Context(), ref, fallback)
	if err != nil {
		return regerror.ErrNotFound("cannot read blob %s: %v", rreq.Digest, err)
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Docker-Content-Digest", rreq.Digest)
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, rc)
	return err
}

func (r *Registry) handleBlobRangeGet(w http.ResponseWriter, rangeHeader string, d digestutil.Digest) error {
	if !r.store.HasBlob(d) {
		return regerror.ErrNotFound("blob %s not found locally", d)
	}
	size, err := r.store.Size(d)
	if err != nil {
		return fmt.Errorf("cannot stat blob: %w", err)
	}
	start, end, err := parseByteRange(rangeHeader, size)
	if err != nil {
		return regerror.ErrBadRequest("invalid Range header: %v", err)
	}
	rc, err := r.store.BlobReader(d)
	if err != nil {
		return fmt.Errorf("cannot open blob: %w", err)
	}
	defer rc.Close()
	if seeker, ok := rc.(io.Seeker); ok {
		if _, err := seeker.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("cannot seek blob: %w", err)
		}
	} else if start > 0 {
		if _, err := io.CopyN(io.Discard, rc, start); err != nil {
			return fmt.Errorf("cannot skip to range start: %w", err)
		}
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, rc, end-start+1)
	return err
}

// parseByteRange parses a single-range "bytes=start-end" header
// (including the open-ended "start-" and suffix "-N" forms) against
// an object of the given size. Multiple ranges are not supported.
func parseByteRange(header string, size int64) (start, end int64, err error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, fmt.Errorf("unsupported range unit in %q", header)
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("multiple ranges not supported")
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range %q", spec)
	}
	if parts[0] == "" {
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if parts[1] == "" {
		return start, size - 1, nil
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if end >= size {
		end = size - 1
	}
	if start > end {
		return 0, 0, fmt.Errorf("range start after end")
	}
	return start, end, nil
}
