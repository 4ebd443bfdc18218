// Package remotesvc caches per-credential and per-(credential,image)
// handles onto the remote pinning backend, lazily provisioning a
// dataset for each image so that all of an image's blobs and its
// manifest land in one billable, atomic unit.
//
// The backend itself -- wallet funding, RPC, proof-of-data-possession,
// the payment rail -- is an external collaborator named in the system
// specification and is consumed here only through the narrow Backend
// interface below.
package remotesvc

import (
	"context"
	"io"
)

// Backend is the narrow interface the core consumes from the
// remote pinning service. Implementations hold the wallet, RPC
// client, and chain/contract details; this package never inspects
// any of that.
type Backend interface {
	// Initialize constructs a BaseService for cred, optionally
	// overriding the RPC endpoint and the storage/warm-storage
	// contract address (empty strings mean "use the backend's
	// default").
	Initialize(ctx context.Context, cred string, rpcURL, warmStorageAddr string) (BaseService, error)
}

// BaseService is one expensive per-credential handle: the wallet
// and RPC client bootstrap that every dataset for that credential is
// built on top of.
type BaseService interface {
	// CreateDataset provisions a new dataset tagged with metadata,
	// returning a handle to it.
	CreateDataset(ctx context.Context, metadata map[string]string) (DatasetHandle, error)
	// Teardown releases whatever resources this base service holds.
	Teardown(ctx context.Context) error
}

// DatasetHandle identifies one remote dataset: a logical grouping
// that collects pinned payloads under one owned/billable account.
type DatasetHandle interface {
	// Pin commits payload durably to the dataset under contentID,
	// returning a receipt once the backend has accepted it.
	Pin(ctx context.Context, payload []byte, contentID string, metadata map[string]string) (PinReceipt, error)
}

// PinReceipt is the backend's acknowledgement that a payload was
// committed. Its fields are opaque to the core; it exists so
// implementations can carry proof/transaction metadata through to
// callers that want it (e.g. for observability), without the core
// depending on their shape.
type PinReceipt struct {
	ContentID string
	Detail    map[string]string
}

// Fetcher is the read-side narrow interface: fetch previously
// pinned bytes by content identifier via the backend's HTTP
// gateway. Kept separate from Backend/DatasetHandle because reads
// don't need a credential or a dataset -- any content-id is
// globally fetchable once pinned.
type Fetcher interface {
	FetchByContentID(ctx context.Context, contentID string) (io.ReadCloser, error)
}
