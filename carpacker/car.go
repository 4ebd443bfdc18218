// Package carpacker wraps raw bytes as a single-block
// content-addressed archive (CAR) suitable for handing to an
// IPFS/Filecoin pinning backend, computing the same content
// identifier the backend will use to address the payload.
package carpacker

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-car"
	"github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"

	"github.com/ipregistry/ociregistry/regerror"
)

// rawCodec is the multicodec for "raw bytes, no further framing",
// the codec blob and manifest payload CIDs use.
const rawCodec = 0x55

// Payload is a serialized single-block CARv1 archive together with
// the content identifier of its one block.
type Payload struct {
	Bytes     []byte
	ContentID string
}

// Pack computes a CIDv1 (raw codec, SHA-256 multihash) over data and
// wraps data as a single-block CARv1 archive rooted at that CID.
// It's pure and synchronous; per spec §4.8 any failure here is
// surfaced as regerror.KindPack rather than retried.
func Pack(data []byte) (Payload, error) {
	id, err := contentID(data)
	if err != nil {
		return Payload{}, regerror.ErrPack("cannot compute content id: %v", err)
	}
	carBytes, err := writeSingleBlockCAR(id, data)
	if err != nil {
		return Payload{}, regerror.ErrPack("cannot pack CAR payload: %v", err)
	}
	return Payload{Bytes: carBytes, ContentID: id.String()}, nil
}

func contentID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cannot hash payload: %w", err)
	}
	return cid.NewCidV1(rawCodec, mh), nil
}

// writeSingleBlockCAR emits a CARv1 stream with one root and one
// block: a header naming root, followed by the (cid, data) block
// itself, per the format car.WriteHeader/util.LdWrite implement.
func writeSingleBlockCAR(root cid.Cid, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	header := &car.CarHeader{
		Roots:   []cid.Cid{root},
		Version: 1,
	}
	if err := car.WriteHeader(header, &buf); err != nil {
		return nil, fmt.Errorf("cannot write CAR header: %w", err)
	}
	if err := util.LdWrite(&buf, root.Bytes(), data); err != nil {
		return nil, fmt.Errorf("cannot write CAR block: %w", err)
	}
	return buf.Bytes(), nil
}
