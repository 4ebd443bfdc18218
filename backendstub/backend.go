// Package backendstub is the default remotesvc.Backend /
// remotesvc.Fetcher implementation this process wires in when no
// real pinning backend is configured.
//
// Per spec.md §1, the remote pinning backend -- wallet, RPC,
// proof-of-data-possession, the payment rail -- is an external
// collaborator consumed only through remotesvc's narrow interfaces;
// it is explicitly out of scope for this core. No pack repo vendors
// an IPFS/Filecoin client (see DESIGN.md), so this package gives the
// core something concrete to run against out of the box: every pin
// fails with regerror.KindBackendPin and every fetch fails with
// regerror.KindNotFound, which per spec.md §7 is accepted degradation
// -- pushes still succeed on local durability alone, and the resolver
// serves local bytes indefinitely. A deployment wanting real remote
// persistence swaps this for an implementation of the same two
// interfaces.
package backendstub

import (
	"context"
	"io"

	"github.com/ipregistry/ociregistry/regerror"
	"github.com/ipregistry/ociregistry/remotesvc"
)

// Backend is a remotesvc.Backend that never talks to a real wallet
// or RPC endpoint.
type Backend struct{}

// New returns a Backend ready to use.
func New() *Backend { return &Backend{} }

// Initialize returns a BaseService scoped to cred. It never fails:
// the expensive work a real backend would do here (wallet bootstrap,
// RPC dial) has nothing to connect to yet.
func (Backend) Initialize(ctx context.Context, cred string, rpcURL, warmStorageAddr string) (remotesvc.BaseService, error) {
	return &baseService{}, nil
}

// FetchByContentID always reports not found: this stub never pins
// anything, so no content-id it could be asked for ever exists
// remotely.
func (Backend) FetchByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	return nil, regerror.ErrNotFound("remote backend not configured: cannot fetch %s", contentID)
}

type baseService struct{}

// CreateDataset returns a dataset handle whose Pin always fails.
// It never fails itself: dataset provisioning against a real backend
// is the expensive, fallible step; here it's free.
func (baseService) CreateDataset(ctx context.Context, metadata map[string]string) (remotesvc.DatasetHandle, error) {
	return &dataset{}, nil
}

// Teardown is a no-op: there's no connection to release.
func (baseService) Teardown(ctx context.Context) error { return nil }

type dataset struct{}

// Pin always fails with KindBackendPin. The async pipeline logs this
// and leaves the affected mapping entry at its local digest, per
// spec.md §4.11/§7.
func (dataset) Pin(ctx context.Context, payload []byte, contentID string, metadata map[string]string) (remotesvc.PinReceipt, error) {
	return remotesvc.PinReceipt{}, regerror.ErrBackendPin("remote backend not configured: cannot pin %s", contentID)
}
