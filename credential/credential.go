// Package credential extracts a normalized private-key credential
// from an incoming HTTP Authorization header. The registry performs
// no signing of its own: the extracted key is an opaque identifier
// that gets handed straight to the remote pinning backend.
package credential

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Credential is a normalized 0x-prefixed hex private-key string,
// used solely as an opaque identifier for the remote backend and as
// a cache key in the remote-service manager.
type Credential string

// FromRequest parses req's Authorization header into a Credential.
// It recognizes:
//
//	Basic base64(user:pass)  -> key is pass, or the whole decoded
//	                            value if pass is empty
//	Bearer <token>           -> key is <token>
//
// A missing or unparseable header returns ("", false).
func FromRequest(req *http.Request) (Credential, bool) {
	return FromHeader(req.Header.Get("Authorization"))
}

// FromHeader is the header-value-only form of FromRequest, useful
// for testing without constructing a full *http.Request.
func FromHeader(header string) (Credential, bool) {
	if header == "" {
		return "", false
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(scheme) {
	case "basic":
		return basicCredential(rest)
	case "bearer":
		if rest == "" {
			return "", false
		}
		return normalize(rest), true
	default:
		return "", false
	}
}

func basicCredential(encoded string) (Credential, bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	_, pass, ok := strings.Cut(string(decoded), ":")
	if !ok || pass == "" {
		// No colon, or a colon with nothing after it: the whole
		// decoded value becomes the key.
		return normalize(string(decoded)), true
	}
	return normalize(pass), true
}

// normalize trims whitespace and ensures a "0x" prefix, matching
// the private-key hex convention the remote backend expects.
func normalize(key string) Credential {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "0x") {
		key = "0x" + key
	}
	return Credential(key)
}
