// Package mappingindex is the durable JSON index from OCI
// coordinates (image, reference) to a ContentRef, and (image,
// digest) to a ContentRef for blobs. It's the single source of
// truth the resolver consults to find bytes, and the single place
// the async pipeline rewrites once a remote pin completes.
//
// The on-disk shape is intentionally loose -- see the shapes
// documented on Index -- so that hand-edited or externally produced
// mapping files keep working. All mutation goes through Mutate,
// which is the only way to get a writable view of the in-memory
// tree; the tree itself is never exposed.
package mappingindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Index is a durable, single-writer JSON document. Every mutation
// is serialized through one mutex and persisted via temp+rename, so
// the file on disk is always either the previous consistent state
// or the new one, never partial, and readers always observe one or
// the other.
type Index struct {
	path string

	mu   sync.Mutex
	data map[string]any
}

// Load reads path into memory, creating an empty index if the file
// doesn't exist yet. If the file exists but contains malformed JSON,
// Load fails unless lenient is true, in which case it logs nothing
// itself (the caller should) and falls back to an empty mapping --
// matching spec §7's "Fatal conditions" note that a strict-mode
// implementation should refuse to start on a corrupt mapping file.
func Load(path string, lenient bool) (*Index, error) {
	idx := &Index{path: path, data: map[string]any{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("cannot read mapping file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return idx, nil
	}
	if err := json.Unmarshal(raw, &idx.data); err != nil {
		if lenient {
			idx.data = map[string]any{}
			return idx, nil
		}
		return nil, fmt.Errorf("mapping file %s contains malformed JSON: %w", path, err)
	}
	return idx, nil
}

func (idx *Index) persistLocked() error {
	data, err := json.MarshalIndent(idx.data, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal mapping index: %w", err)
	}
	dir := filepath.Dir(idx.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".mapping-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot write temp mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, idx.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot rename temp mapping file into place: %w", err)
	}
	return nil
}

// Mutate gives fn exclusive access to the in-memory tree, then
// persists whatever fn left behind. The tree is never exposed
// outside a Mutate call, per spec §9's "withMutation" design note.
func (idx *Index) Mutate(fn func(tree map[string]any)) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	fn(idx.data)
	return idx.persistLocked()
}

func refKey(image, reference string) string {
	return image + ":" + reference
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// manifestRefFromValue extracts a ContentRef from a value that may
// be either a bare string or an object with a "manifest_cid" field.
func manifestRefFromValue(v any) (ContentRef, bool) {
	switch x := v.(type) {
	case string:
		return ContentRef(x), true
	case map[string]any:
		if s, ok := x["manifest_cid"].(string); ok {
			return ContentRef(s), true
		}
	}
	return "", false
}

// LookupManifest resolves (image, reference) to a ContentRef,
// following the precedence order in spec §4.5:
//  1. the direct "<image>:<reference>" key (bare string or
//     manifest_cid object);
//  2. the nested mappings[image][reference] fallback, same shape
//     rule;
//  3. if reference looks like a digest, a linear scan of all
//     "<image>:*" keys for a manifest_cid matching it exactly;
//  4. otherwise not found.
func (idx *Index) LookupManifest(image, reference string) (ContentRef, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if v, ok := idx.data[refKey(image, reference)]; ok {
		if ref, ok := manifestRefFromValue(v); ok {
			return ref, true
		}
	}
	if imgTree, ok := asObject(idx.data[image]); ok {
		if v, ok := imgTree[reference]; ok {
			if ref, ok := manifestRefFromValue(v); ok {
				return ref, true
			}
		}
	}
	if strings.HasPrefix(reference, "sha256:") {
		prefix := image + ":"
		for k, v := range idx.data {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			ref, ok := manifestRefFromValue(v)
			if ok && ref.String() == reference {
				return ref, true
			}
		}
	}
	return "", false
}

// LookupBlob resolves (image, digest) to a ContentRef, per spec
// §4.5: first the per-image blob table, then the global blob pool.
func (idx *Index) LookupBlob(image string, digest string) (ContentRef, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if imgTree, ok := asObject(idx.data[image]); ok {
		if blobs, ok := asObject(imgTree["blobs"]); ok {
			if v, ok := blobs[digest].(string); ok {
				return ContentRef(v), true
			}
		}
	}
	if blobs, ok := asObject(idx.data["blobs"]); ok {
		if v, ok := blobs[digest].(string); ok {
			return ContentRef(v), true
		}
	}
	return "", false
}

// AddManifest records (image, reference) -> contentRef, with an
// optional per-image blob table. When blobMap is empty the value is
// written as a bare string; otherwise as an object carrying both
// manifest_cid and blobs, per spec §4.5. Each blobMap entry is also
// recorded in the image's blob table (the one LookupBlob reads) unless
// that digest already has an entry there.
func (idx *Index) AddManifest(image, reference string, ref ContentRef, blobMap map[string]ContentRef) error {
	return idx.Mutate(func(tree map[string]any) {
		tree[refKey(image, reference)] = manifestValue(ref, blobMap)
		if len(blobMap) == 0 {
			return
		}
		imgTree, ok := asObject(tree[image])
		if !ok {
			imgTree = map[string]any{}
			tree[image] = imgTree
		}
		blobs, ok := asObject(imgTree["blobs"])
		if !ok {
			blobs = map[string]any{}
			imgTree["blobs"] = blobs
		}
		for d, r := range blobMap {
			if _, exists := blobs[d]; !exists {
				blobs[d] = r.String()
			}
		}
	})
}

func manifestValue(ref ContentRef, blobMap map[string]ContentRef) any {
	if len(blobMap) == 0 {
		return ref.String()
	}
	blobs := make(map[string]any, len(blobMap))
	for d, r := range blobMap {
		blobs[d] = r.String()
	}
	return map[string]any{
		"manifest_cid": ref.String(),
		"blobs":        blobs,
	}
}

// LookupManifestLocalDigest returns the local digest a manifest
// entry was originally recorded under, if the index still remembers
// one. AddManifest always starts an entry at its local digest, so
// this is available immediately after a PUT; RewriteManifestRef
// preserves it (stashing it into a "local_digest" field the first
// time it converts a bare-string entry to an object) so a resolver
// can still fall back to local bytes after the entry's primary
// contentRef has moved to a remote id. Not part of the recognized
// wire shapes in spec §4.5 -- an additional field readers that only
// understand "manifest_cid"/"blobs" safely ignore.
func (idx *Index) LookupManifestLocalDigest(image, reference string) (digest string, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if v, ok := idx.data[refKey(image, reference)]; ok {
		if d, found := localDigestFromValue(v); found {
			return d, true
		}
	}
	if imgTree, ok := asObject(idx.data[image]); ok {
		if v, ok := imgTree[reference]; ok {
			if d, found := localDigestFromValue(v); found {
				return d, true
			}
		}
	}
	return "", false
}

func localDigestFromValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case map[string]any:
		if s, ok := x["local_digest"].(string); ok {
			return s, true
		}
		if s, ok := x["manifest_cid"].(string); ok {
			return s, true
		}
	}
	return "", false
}

// AddBlob records a standalone blob push (one with no manifest yet
// referencing it) under the per-image blob table.
func (idx *Index) AddBlob(image, digest string, ref ContentRef) error {
	return idx.Mutate(func(tree map[string]any) {
		imgTree, ok := asObject(tree[image])
		if !ok {
			imgTree = map[string]any{}
			tree[image] = imgTree
		}
		blobs, ok := asObject(imgTree["blobs"])
		if !ok {
			blobs = map[string]any{}
			imgTree["blobs"] = blobs
		}
		blobs[digest] = ref.String()
	})
}

// RewriteBlobRef atomically swaps the contentRef recorded for
// (image, digest) -- used by the async pipeline once a pin
// completes, to move the value from a local digest to the remote
// content-id without ever exposing an intermediate state to readers.
func (idx *Index) RewriteBlobRef(image, digest string, newRef ContentRef) error {
	return idx.Mutate(func(tree map[string]any) {
		imgTree, ok := asObject(tree[image])
		if !ok {
			imgTree = map[string]any{}
			tree[image] = imgTree
		}
		blobs, ok := asObject(imgTree["blobs"])
		if !ok {
			blobs = map[string]any{}
			imgTree["blobs"] = blobs
		}
		blobs[digest] = newRef.String()
	})
}

// RewriteManifestRef atomically swaps the contentRef recorded for
// (image, reference). Per spec §9's Open Question on manifest
// rewrites, this mirrors RewriteBlobRef's behavior: if the existing
// entry is a bare string, it becomes an object whose manifest_cid is
// the new ref and whose local_digest is the old string; if it's an
// object, its manifest_cid field is updated (the previous value is
// kept as local_digest if none is stored yet) and the blobs table is
// preserved untouched; if there is no entry, the new ref is written
// as a bare string.
func (idx *Index) RewriteManifestRef(image, reference string, newRef ContentRef) error {
	return idx.Mutate(func(tree map[string]any) {
		key := refKey(image, reference)
		switch existing := tree[key].(type) {
		case map[string]any:
			if _, ok := existing["local_digest"]; !ok {
				if cid, ok := existing["manifest_cid"].(string); ok {
					existing["local_digest"] = cid
				}
			}
			existing["manifest_cid"] = newRef.String()
			tree[key] = existing
		case string:
			tree[key] = map[string]any{
				"manifest_cid": newRef.String(),
				"local_digest": existing,
			}
		default:
			tree[key] = newRef.String()
		}
	})
}
