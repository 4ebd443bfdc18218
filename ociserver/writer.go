package ociserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ipregistry/ociregistry/asyncpin"
	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/internal/ocirequest"
	"github.com/ipregistry/ociregistry/manifest"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/regerror"
)

func (r *Registry) handleBlobStartUpload(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	if _, err := requireAuth(w, req, r.registryName); err != nil {
		return err
	}
	id := r.sessions.Start(rreq.Name)
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", rreq.Name, id))
	w.Header().Set("Docker-Upload-UUID", id)
	w.Header().Set("Range", "0-0")
	// Informational only: the session table imposes no real minimum
	// chunk size, per spec.md §4.4.
	w.Header().Set("OCI-Chunk-Min-Length", "0")
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (r *Registry) handleBlobUploadChunk(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	if _, err := requireAuth(w, req, r.registryName); err != nil {
		return err
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return regerror.ErrBadRequest("cannot read chunk body: %v", err)
	}
	if len(data) == 0 {
		return regerror.ErrBadRequest("No data provided")
	}
	size, err := r.sessions.Append(rreq.UploadID, data)
	if err != nil {
		return err
	}
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", rreq.Name, rreq.UploadID))
	w.Header().Set("Docker-Upload-UUID", rreq.UploadID)
	w.Header().Set("Range", fmt.Sprintf("0-%d", size-1))
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (r *Registry) handleBlobCompleteUpload(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	cred, err := requireAuth(w, req, r.registryName)
	if err != nil {
		return err
	}
	digestParam := req.URL.Query().Get("digest")
	if digestParam == "" {
		return regerror.ErrBadRequest("missing digest query parameter")
	}
	final, err := io.ReadAll(req.Body)
	if err != nil {
		return regerror.ErrBadRequest("cannot read final chunk: %v", err)
	}
	if len(final) > 0 {
		if _, err := r.sessions.Append(rreq.UploadID, final); err != nil {
			return err
		}
	}
	expected, err := digestutil.Parse(digestParam)
	if err != nil {
		return regerror.ErrBadRequest("invalid digest %q: %v", digestParam, err)
	}
	data, actual, err := r.sessions.Finalize(rreq.UploadID, expected)
	if err != nil {
		return err
	}
	if err := r.store.PutBlob(actual, data); err != nil {
		return fmt.Errorf("cannot persist blob: %w", err)
	}
	if err := r.index.AddBlob(rreq.Name, actual.String(), mappingindex.LocalRef(actual)); err != nil {
		return fmt.Errorf("cannot record blob mapping: %w", err)
	}
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/%s", rreq.Name, actual))
	w.Header().Set("Docker-Content-Digest", actual.String())
	w.WriteHeader(http.StatusCreated)

	r.pinner.Schedule(asyncpin.KindBlob, cred, rreq.Name, []string{actual.String()}, actual, data, r.index)
	return nil
}

func (r *Registry) handleManifestPut(w http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	cred, err := requireAuth(w, req, r.registryName)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return regerror.ErrBadRequest("cannot read manifest body: %v", err)
	}
	if len(data) == 0 {
		return regerror.ErrBadRequest("empty manifest body")
	}
	if !json.Valid(data) {
		return regerror.ErrBadRequest("invalid manifest JSON")
	}
	layers, err := manifest.LayersOf(data)
	if err != nil {
		return err
	}
	manifestDigest, err := r.store.SaveManifest(data)
	if err != nil {
		return fmt.Errorf("cannot persist manifest: %w", err)
	}

	blobMap := map[string]mappingindex.ContentRef{}
	for _, l := range layers {
		if ref, ok := r.index.LookupBlob(rreq.Name, l.String()); ok {
			blobMap[l.String()] = ref
		}
	}

	localRef := mappingindex.LocalRef(manifestDigest)
	if err := r.index.AddManifest(rreq.Name, rreq.Ref, localRef, blobMap); err != nil {
		return fmt.Errorf("cannot record manifest mapping: %w", err)
	}
	refs := []string{rreq.Ref}
	if rreq.Ref != manifestDigest.String() {
		if err := r.index.AddManifest(rreq.Name, manifestDigest.String(), localRef, blobMap); err != nil {
			return fmt.Errorf("cannot record manifest digest alias: %w", err)
		}
		refs = append(refs, manifestDigest.String())
	}

	if subject, err := manifest.Subject(manifest.ContentType(data), data); err == nil && subject != nil {
		w.Header().Set("OCI-Subject", subject.Digest.String())
	}
	w.Header().Set("Docker-Content-Digest", manifestDigest.String())
	w.WriteHeader(http.StatusCreated)

	r.pinner.Schedule(asyncpin.KindManifest, cred, rreq.Name, refs, manifestDigest, data, r.index)
	return nil
}
