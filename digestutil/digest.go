// Package digestutil provides the canonical content digest used
// throughout the registry: a streaming SHA-256 wrapped in the
// "sha256:<hex>" wire form used by the OCI distribution spec.
package digestutil

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// Digest is the canonical sha256:<hex> form. Equal bytes always
// produce an equal Digest; the hex portion is always lowercase.
type Digest = digest.Digest

// FromBytes computes the canonical digest of data in one pass.
func FromBytes(data []byte) Digest {
	return digest.FromBytes(data)
}

// FromReader computes the canonical digest by consuming r to EOF.
func FromReader(r io.Reader) (Digest, error) {
	return digest.FromReader(r)
}

// Parse validates s and returns it as a Digest, unchanged. It rejects
// anything that isn't a well-formed algorithm:hex pair, including a
// sha256 digest whose hex portion is not all lowercase.
func Parse(s string) (Digest, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return "", err
	}
	return d, nil
}

// Valid reports whether s parses as a well-formed digest.
func Valid(s string) bool {
	_, err := digest.Parse(s)
	return err == nil
}

// Verifier accumulates bytes across many writes (one per upload
// chunk) and produces the final digest on Sum. It never buffers the
// underlying bytes itself -- callers that also need the raw bytes
// keep their own buffer and feed it through Write as they go.
type Verifier struct {
	d digest.Digester
}

// NewVerifier returns a Verifier ready to accept writes.
func NewVerifier() *Verifier {
	return &Verifier{d: digest.Canonical.Digester()}
}

// Write implements io.Writer, feeding data into the running hash.
func (v *Verifier) Write(data []byte) (int, error) {
	return v.d.Hash().Write(data)
}

// Sum returns the canonical digest of everything written so far.
func (v *Verifier) Sum() Digest {
	return v.d.Digest()
}

// Matches reports whether the accumulated digest equals want. An
// empty want always matches nothing -- callers must check for an
// empty expected digest before relying on this to mean "no check".
func (v *Verifier) Matches(want Digest) bool {
	return want != "" && v.Sum() == want
}
