package mappingindex

import (
	"strings"

	"github.com/ipregistry/ociregistry/digestutil"
)

// ContentRef is either a local digest or a remote content identifier,
// distinguished by the "sha256:" prefix per spec §9's "Mapping
// heterogeneity" design note. It serializes as the bare string form
// to stay compatible with existing mapping files -- there's no
// wrapper object, just the string itself.
type ContentRef string

// LocalRef wraps a local digest as a ContentRef.
func LocalRef(d digestutil.Digest) ContentRef { return ContentRef(d) }

// RemoteRef wraps a remote content identifier as a ContentRef.
func RemoteRef(contentID string) ContentRef { return ContentRef(contentID) }

// IsLocal reports whether ref names a local digest rather than a
// remote content identifier.
func (ref ContentRef) IsLocal() bool {
	return strings.HasPrefix(string(ref), "sha256:")
}

// Digest returns ref as a Digest. Only meaningful when IsLocal is
// true; callers must check that first.
func (ref ContentRef) Digest() digestutil.Digest {
	return digestutil.Digest(ref)
}

// String returns the bare wire form of ref.
func (ref ContentRef) String() string {
	return string(ref)
}
