// Package ocirequest parses an incoming OCI distribution v2 request
// path into its image name, reference/digest, and upload id, per
// spec.md §4.10's "image-name extraction" rule: the name is the
// maximal substring between "/v2/" and the next fixed segment
// (manifests, blobs, or blobs/uploads). The registry never interprets
// the name's internal "/"-separated segments.
//
// Trimmed from the teacher's internal/ocirequest to the endpoint set
// this system implements -- no catalog, referrers, cross-repo mount,
// or tag listing, all excluded by spec.md's Non-goals.
package ocirequest

import (
	"fmt"
	"regexp"
)

// Kind identifies which endpoint a parsed Request targets.
type Kind int

const (
	ReqPing Kind = iota
	ReqHealth
	ReqManifestHead
	ReqManifestGet
	ReqManifestPut
	ReqBlobHead
	ReqBlobGet
	ReqBlobStartUpload
	ReqBlobUploadChunk
	ReqBlobCompleteUpload
)

// Request is the parsed form of one HTTP request against the
// registry's wire surface.
type Request struct {
	Kind     Kind
	Name     string // image name; may itself contain "/"
	Ref      string // tag or digest, for manifest endpoints
	Digest   string // digest, for blob endpoints
	UploadID string
}

var (
	reUploadStart = regexp.MustCompile(`^/v2/(.+)/blobs/uploads/?$`)
	reUploadChunk = regexp.MustCompile(`^/v2/(.+)/blobs/uploads/([^/]+)$`)
	reManifest    = regexp.MustCompile(`^/v2/(.+)/manifests/([^/]+)$`)
	reBlob        = regexp.MustCompile(`^/v2/(.+)/blobs/([^/]+)$`)
	rePing        = regexp.MustCompile(`^/v2/?$`)
)

// ErrNoMatch is returned when path doesn't match any recognized
// endpoint shape; callers should respond 400.
var ErrNoMatch = fmt.Errorf("path does not match any known OCI v2 endpoint")

// Parse extracts a Request from method and path. path must already
// be stripped of any query string.
func Parse(method, path string) (*Request, error) {
	if path == "/health" && method == "GET" {
		return &Request{Kind: ReqHealth}, nil
	}
	if rePing.MatchString(path) {
		return &Request{Kind: ReqPing}, nil
	}
	if m := reUploadChunk.FindStringSubmatch(path); m != nil {
		var kind Kind
		switch method {
		case "PATCH":
			kind = ReqBlobUploadChunk
		case "PUT":
			kind = ReqBlobCompleteUpload
		default:
			return nil, ErrNoMatch
		}
		return &Request{Kind: kind, Name: m[1], UploadID: m[2]}, nil
	}
	if m := reUploadStart.FindStringSubmatch(path); m != nil {
		if method != "POST" {
			return nil, ErrNoMatch
		}
		return &Request{Kind: ReqBlobStartUpload, Name: m[1]}, nil
	}
	if m := reManifest.FindStringSubmatch(path); m != nil {
		var kind Kind
		switch method {
		case "GET":
			kind = ReqManifestGet
		case "HEAD":
			kind = ReqManifestHead
		case "PUT":
			kind = ReqManifestPut
		default:
			return nil, ErrNoMatch
		}
		return &Request{Kind: kind, Name: m[1], Ref: m[2]}, nil
	}
	if m := reBlob.FindStringSubmatch(path); m != nil {
		var kind Kind
		switch method {
		case "GET":
			kind = ReqBlobGet
		case "HEAD":
			kind = ReqBlobHead
		default:
			return nil, ErrNoMatch
		}
		return &Request{Kind: kind, Name: m[1], Digest: m[2]}, nil
	}
	return nil, ErrNoMatch
}
