// Package manifest extracts the layer digest list from a manifest
// JSON document, supporting both the current OCI/Docker v2 schema
// and the legacy fsLayers shape, without otherwise validating or
// re-serializing the document.
package manifest

import (
	"encoding/json"
	"fmt"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ipregistry/ociregistry/digestutil"
	"github.com/ipregistry/ociregistry/regerror"
)

// schema covers both OCI image manifests/indexes and Docker v2
// schema-2 manifests: all three put their layer list under
// "layers", differing only in which other fields are present. We
// decode into this superset rather than a specific typed manifest so
// that unknown fields never cause a parse failure.
type schema struct {
	SchemaVersion int                  `json:"schemaVersion"`
	MediaType     string               `json:"mediaType"`
	Layers        []ocispec.Descriptor `json:"layers"`
	FSLayers      []legacyFSLayer      `json:"fsLayers"`
	Subject       *ocispec.Descriptor  `json:"subject"`
}

type legacyFSLayer struct {
	BlobSum string `json:"blobSum"`
}

// LayersOf returns the layer digests referenced by a manifest JSON
// document. It prefers the OCI/Docker v2 "layers[*].digest" shape;
// if that's absent it falls back to the legacy "fsLayers[*].blobSum"
// shape; if neither is present it returns an empty, non-nil slice.
//
// Any failure to parse data as JSON at all returns a
// regerror.KindBadRequest error.
func LayersOf(data []byte) ([]digestutil.Digest, error) {
	var m schema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, regerror.ErrBadRequest("invalid manifest JSON: %v", err)
	}
	if len(m.Layers) > 0 {
		out := make([]digestutil.Digest, 0, len(m.Layers))
		for _, l := range m.Layers {
			out = append(out, digestutil.Digest(l.Digest))
		}
		return out, nil
	}
	if len(m.FSLayers) > 0 {
		// Legacy fsLayers are listed base-last on the wire (most
		// recent layer first); left un-reversed here since every
		// caller only uses this list to populate the blobMap keyed
		// by digest, where order carries no meaning.
		out := make([]digestutil.Digest, 0, len(m.FSLayers))
		for _, l := range m.FSLayers {
			out = append(out, digestutil.Digest(l.BlobSum))
		}
		return out, nil
	}
	return []digestutil.Digest{}, nil
}

// Subject returns the "subject" descriptor of an OCI image manifest
// or image index, or nil if data doesn't declare one (or isn't one
// of those two media types). Mirrors the teacher's
// ociserver.subjectFromManifest, which deliberately parses only the
// one field it needs rather than the whole schema.
func Subject(mediaType string, data []byte) (*ocispec.Descriptor, error) {
	switch mediaType {
	case ocispec.MediaTypeImageManifest, ocispec.MediaTypeImageIndex:
	default:
		return nil, nil
	}
	var m struct {
		Subject *ocispec.Descriptor `json:"subject"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	return m.Subject, nil
}

// ContentType resolves the Content-Type to serve a manifest with,
// per spec §4.10: the declared mediaType if present, else a
// schemaVersion-based guess (Docker v2 for schemaVersion 2, OCI v1
// otherwise).
func ContentType(data []byte) string {
	var m struct {
		MediaType     string `json:"mediaType"`
		SchemaVersion int    `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return ocispec.MediaTypeImageManifest
	}
	if m.MediaType != "" {
		return m.MediaType
	}
	if m.SchemaVersion == 2 {
		return "application/vnd.docker.distribution.manifest.v2+json"
	}
	return ocispec.MediaTypeImageManifest
}
