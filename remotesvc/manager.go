package remotesvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipregistry/ociregistry/credential"
)

// Manager is the two-level cache described in spec §4.7: one
// expensive BaseService per credential, and one ImageService per
// (credential, image) pair built lazily on top of it. Entries,
// once created, are immutable handles; eviction only happens on
// Shutdown.
//
// Grounded on the teacher's create-if-absent-under-a-mutex shape
// (ocimem.Registry.repo/makeRepo), generalized from "repository" to
// "remote service handle".
type Manager struct {
	backend      Backend
	rpcURL       string
	warmStorage  string
	registryName string

	mu     sync.Mutex
	base   map[credential.Credential]BaseService
	images map[imageKey]*ImageService
}

type imageKey struct {
	cred  credential.Credential
	image string
}

// ImageService wraps a BaseService together with the dataset
// created for one image, plus a bit of provider info useful for
// logging.
type ImageService struct {
	Base    BaseService
	Dataset DatasetHandle
	Image   string
}

// NewManager returns a Manager that talks to backend, using rpcURL
// and warmStorageAddr as overrides (empty means backend default),
// and registryName as the "source" tag recorded on every dataset it
// creates.
func NewManager(backend Backend, rpcURL, warmStorageAddr, registryName string) *Manager {
	return &Manager{
		backend:      backend,
		rpcURL:       rpcURL,
		warmStorage:  warmStorageAddr,
		registryName: registryName,
		base:         make(map[credential.Credential]BaseService),
		images:       make(map[imageKey]*ImageService),
	}
}

// ServiceFor returns the ImageService for (cred, image), creating
// the BaseService and/or the per-image dataset if they don't exist
// yet. Per spec §4.7, pinning a layer and its manifest into the
// same dataset keeps an image atomic from the backend's perspective.
func (m *Manager) ServiceFor(ctx context.Context, cred credential.Credential, image string) (*ImageService, error) {
	key := imageKey{cred: cred, image: image}

	m.mu.Lock()
	if svc, ok := m.images[key]; ok {
		m.mu.Unlock()
		return svc, nil
	}
	base, ok := m.base[cred]
	m.mu.Unlock()

	if !ok {
		var err error
		base, err = m.backend.Initialize(ctx, string(cred), m.rpcURL, m.warmStorage)
		if err != nil {
			return nil, fmt.Errorf("cannot initialize base service: %w", err)
		}
		m.mu.Lock()
		if existing, raced := m.base[cred]; raced {
			base = existing
		} else {
			m.base[cred] = base
		}
		m.mu.Unlock()
	}

	dataset, err := base.CreateDataset(ctx, map[string]string{
		"type":      "oci-image",
		"imageName": image,
		"source":    m.registryName,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create dataset for %s: %w", image, err)
	}

	svc := &ImageService{Base: base, Dataset: dataset, Image: image}
	m.mu.Lock()
	if existing, raced := m.images[key]; raced {
		svc = existing
	} else {
		m.images[key] = svc
	}
	m.mu.Unlock()
	return svc, nil
}

// Shutdown drains both caches and tears down every distinct
// BaseService. In-flight pins may be lost; this is accepted loss
// per spec §5 since pushes are idempotent and clients re-push.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	bases := make([]BaseService, 0, len(m.base))
	for _, b := range m.base {
		bases = append(bases, b)
	}
	m.base = make(map[credential.Credential]BaseService)
	m.images = make(map[imageKey]*ImageService)
	m.mu.Unlock()

	var firstErr error
	for _, b := range bases {
		if err := b.Teardown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
