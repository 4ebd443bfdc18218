package ociserver_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-quicktest/qt"

	"github.com/ipregistry/ociregistry/asyncpin"
	"github.com/ipregistry/ociregistry/localstore"
	"github.com/ipregistry/ociregistry/mappingindex"
	"github.com/ipregistry/ociregistry/ociserver"
	"github.com/ipregistry/ociregistry/remotesvc"
	"github.com/ipregistry/ociregistry/resolve"
	"github.com/ipregistry/ociregistry/uploadsession"
)

type stubBackend struct{}

func (stubBackend) Initialize(ctx context.Context, cred string, rpcURL, warmStorageAddr string) (remotesvc.BaseService, error) {
	return stubBase{}, nil
}

type stubBase struct{}

func (stubBase) CreateDataset(ctx context.Context, metadata map[string]string) (remotesvc.DatasetHandle, error) {
	return stubDataset{}, nil
}
func (stubBase) Teardown(ctx context.Context) error { return nil }

type stubDataset struct{}

// Pin blocks until its context ends (asyncpin.PinTimeout) and then
// fails: tests exercise only the synchronous HTTP response, not the
// detached pin goroutine, so no rewrite runs within a test's lifetime.
func (stubDataset) Pin(ctx context.Context, payload []byte, contentID string, metadata map[string]string) (remotesvc.PinReceipt, error) {
	<-ctx.Done()
	return remotesvc.PinReceipt{}, ctx.Err()
}

func newTestRegistry(t *testing.T) *ociserver.Registry {
	t.Helper()
	dir := t.TempDir()
	store, err := localstore.Open(filepath.Join(dir, "storage"))
	qt.Assert(t, qt.IsNil(err))
	idx, err := mappingindex.Load(filepath.Join(dir, "mapping.json"), false)
	qt.Assert(t, qt.IsNil(err))
	sessions := uploadsession.NewTable(0)
	t.Cleanup(sessions.Close)

	mgr := remotesvc.NewManager(stubBackend{}, "", "", "test-registry")
	resolver := resolve.New(store, nil)
	pinner := asyncpin.New(mgr, log.New(io.Discard))

	return ociserver.New(store, sessions, idx, resolver, pinner, "test-registry", log.New(io.Discard))
}

func basicAuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
}

func TestPingRequiresAuthChallenge(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v2/")
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusUnauthorized))
	qt.Assert(t, qt.Not(qt.Equals(resp.Header.Get("WWW-Authenticate"), "")))

	req, err := http.NewRequest("GET", srv.URL+"/v2/", nil)
	qt.Assert(t, qt.IsNil(err))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusOK))

	var body map[string]string
	qt.Assert(t, qt.IsNil(json.NewDecoder(resp.Body).Decode(&body)))
	qt.Assert(t, qt.Equals(body["version"], "2.0"))
}

func TestEmptyBodyPatchReturns400(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	req, err := http.NewRequest("POST", srv.URL+"/v2/test/image/blobs/uploads/", nil)
	qt.Assert(t, qt.IsNil(err))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err := http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	loc := resp.Header.Get("Location")
	resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusAccepted))

	req, err = http.NewRequest("PATCH", srv.URL+loc, strings.NewReader(""))
	qt.Assert(t, qt.IsNil(err))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusBadRequest))

	var body map[string]string
	qt.Assert(t, qt.IsNil(json.NewDecoder(resp.Body).Decode(&body)))
	qt.Assert(t, qt.Equals(body["error"], "No data provided"))
}

func TestPutBlobWithCorrectDigestSucceeds(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/v2/test/image/blobs/uploads/", nil)
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err := http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	loc := resp.Header.Get("Location")
	resp.Body.Close()

	req, _ = http.NewRequest("PATCH", srv.URL+loc, strings.NewReader("hello"))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	loc = resp.Header.Get("Location")
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusAccepted))
	qt.Assert(t, qt.Equals(resp.Header.Get("Range"), "0-4"))
	resp.Body.Close()

	const digest = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	req, _ = http.NewRequest("PUT", srv.URL+loc+"?digest="+digest, nil)
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusCreated))
	qt.Assert(t, qt.Equals(resp.Header.Get("Docker-Content-Digest"), digest))
	qt.Assert(t, qt.Equals(resp.Header.Get("Location"), "/v2/test/image/blobs/"+digest))

	getResp, err := http.Get(srv.URL + "/v2/test/image/blobs/" + digest)
	qt.Assert(t, qt.IsNil(err))
	defer getResp.Body.Close()
	qt.Assert(t, qt.Equals(getResp.StatusCode, http.StatusOK))
	data, err := io.ReadAll(getResp.Body)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(string(data), "hello"))
}

func TestPutBlobWithWrongDigestFails(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/v2/test/image/blobs/uploads/", nil)
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err := http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	loc := resp.Header.Get("Location")
	resp.Body.Close()

	req, _ = http.NewRequest("PATCH", srv.URL+loc, strings.NewReader("hello"))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	loc = resp.Header.Get("Location")
	resp.Body.Close()

	wrong := "sha256:" + strings.Repeat("0", 64)
	req, _ = http.NewRequest("PUT", srv.URL+loc+"?digest="+wrong, nil)
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusBadRequest))
}

func TestManifestPutThenGetByTagAndDigest(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	body := `{"schemaVersion":2,"layers":[{"digest":"sha256:abc","size":3}]}`
	req, _ := http.NewRequest("PUT", srv.URL+"/v2/test/image/manifests/latest", strings.NewReader(body))
	req.Header.Set("Authorization", basicAuthHeader())
	resp, err := http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	digest := resp.Header.Get("Docker-Content-Digest")
	resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusCreated))
	qt.Assert(t, qt.Not(qt.Equals(digest, "")))

	for _, ref := range []string{"latest", digest} {
		getResp, err := http.Get(srv.URL + "/v2/test/image/manifests/" + ref)
		qt.Assert(t, qt.IsNil(err))
		data, err := io.ReadAll(getResp.Body)
		getResp.Body.Close()
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(getResp.StatusCode, http.StatusOK))
		qt.Assert(t, qt.Equals(string(data), body))
		qt.Assert(t, qt.Equals(getResp.Header.Get("Docker-Content-Digest"), digest))
		qt.Assert(t, qt.Equals(getResp.Header.Get("Content-Type"), "application/vnd.docker.distribution.manifest.v2+json"))
	}
}

func TestManifestPutWithoutAuthFails(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v2/test/image/manifests/latest", "application/json", strings.NewReader("{}"))
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	// POST isn't a recognized manifest method at all; verify the
	// actual write path (PUT) separately for the auth check.
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusBadRequest))

	req, _ := http.NewRequest("PUT", srv.URL+"/v2/test/image/manifests/latest", strings.NewReader("{}"))
	resp, err = http.DefaultClient.Do(req)
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusUnauthorized))
}

func TestHealthEndpoint(t *testing.T) {
	reg := newTestRegistry(t)
	srv := httptest.NewServer(reg)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	qt.Assert(t, qt.IsNil(err))
	defer resp.Body.Close()
	qt.Assert(t, qt.Equals(resp.StatusCode, http.StatusOK))
	var body map[string]string
	qt.Assert(t, qt.IsNil(json.NewDecoder(resp.Body).Decode(&body)))
	qt.Assert(t, qt.Equals(body["status"], "healthy"))
}
