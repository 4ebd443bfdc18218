// Package localstore persists raw bytes by content digest under a
// root directory, in two namespaces (blobs, manifests), using
// atomic temp-file-then-rename writes so a reader never observes a
// partially written file.
package localstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ipregistry/ociregistry/digestutil"
)

// Store is a content-addressed byte store rooted at a directory,
// laid out as:
//
//	<root>/blobs/<hex>
//	<root>/manifests/<hex>
type Store struct {
	root string
}

// Open ensures root/blobs and root/manifests exist (creating them
// recursively if necessary) and returns a Store backed by them.
func Open(root string) (*Store, error) {
	for _, sub := range []string{"blobs", "manifests"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create %s directory: %w", sub, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) blobPath(d digestutil.Digest) string {
	return filepath.Join(s.root, "blobs", d.Encoded())
}

func (s *Store) manifestPath(d digestutil.Digest) string {
	return filepath.Join(s.root, "manifests", d.Encoded())
}

// PutBlob writes data under digest in the blobs namespace. It's a
// no-op (not an error) if that digest is already present, since
// local blobs are immutable once written.
func (s *Store) PutBlob(digest digestutil.Digest, data []byte) error {
	return s.putAtomic(s.blobPath(digest), data)
}

// SaveManifest hashes data and writes it verbatim -- never
// re-serialized -- to the manifests namespace, returning the digest
// a client computing sha256 over the wire body would get.
func (s *Store) SaveManifest(data []byte) (digestutil.Digest, error) {
	d := digestutil.FromBytes(data)
	if err := s.putAtomic(s.manifestPath(d), data); err != nil {
		return "", err
	}
	return d, nil
}

func (s *Store) putAtomic(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot rename into place: %w", err)
	}
	return nil
}

// BlobReader opens a streaming reader for the blob with the given
// digest. It returns os.ErrNotExist (wrapped) if it isn't present.
func (s *Store) BlobReader(digest digestutil.Digest) (io.ReadCloser, error) {
	return os.Open(s.blobPath(digest))
}

// ManifestReader opens a streaming reader for the manifest with the
// given digest. It returns os.ErrNotExist (wrapped) if it isn't
// present.
func (s *Store) ManifestReader(digest digestutil.Digest) (io.ReadCloser, error) {
	return os.Open(s.manifestPath(digest))
}

// HasBlob reports whether a blob with the given digest is present.
func (s *Store) HasBlob(digest digestutil.Digest) bool {
	_, err := os.Stat(s.blobPath(digest))
	return err == nil
}

// HasManifest reports whether a manifest with the given digest is
// present.
func (s *Store) HasManifest(digest digestutil.Digest) bool {
	_, err := os.Stat(s.manifestPath(digest))
	return err == nil
}

// Size returns the size in bytes of the blob with the given digest.
func (s *Store) Size(digest digestutil.Digest) (int64, error) {
	fi, err := os.Stat(s.blobPath(digest))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
