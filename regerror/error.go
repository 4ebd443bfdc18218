// Package regerror defines the error kinds the registry core
// surfaces to its callers, per the error table in the system
// specification. It mirrors the code/HTTP-status shape the teacher
// registry uses for OCI distribution-spec error codes, but the codes
// themselves are this system's own (local digest vs remote pin
// failures rather than the full OCI error-code catalog).
package regerror

import "fmt"

// Kind identifies one of the error categories the core can surface.
type Kind string

const (
	// KindBadRequest covers a missing digest query parameter, an
	// empty body where one is required, or malformed JSON.
	KindBadRequest Kind = "BAD_REQUEST"
	// KindUnauthorized covers a write endpoint called without
	// credentials.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindNotFound covers a mapping miss, or a local miss with no
	// remote fallback.
	KindNotFound Kind = "NOT_FOUND"
	// KindDigestMismatch covers a finalized upload whose computed
	// digest doesn't match the caller-supplied one.
	KindDigestMismatch Kind = "DIGEST_MISMATCH"
	// KindPack covers a CAR-packing failure. Never user-visible: the
	// async pipeline degrades to local-only and logs it.
	KindPack Kind = "PACK_FAILED"
	// KindBackendPin covers a remote pin failure. Never user-visible:
	// the response was already sent before the pin ran.
	KindBackendPin Kind = "BACKEND_PIN_FAILED"
	// KindInsufficientFunds is a specific backend failure surfaced
	// with a funding hint in logs only.
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
)

// httpStatus maps each user-visible kind to its HTTP status. Kinds
// that are never user-visible (KindPack, KindBackendPin,
// KindInsufficientFunds) are omitted; they only ever reach a logger.
var httpStatus = map[Kind]int{
	KindBadRequest:     400,
	KindUnauthorized:   401,
	KindNotFound:       404,
	KindDigestMismatch: 400,
}

// Error is the error type returned by the core. It carries a Kind
// so that the HTTP surface can translate it to a status code and a
// JSON body without string-matching the message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// New returns an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// HTTPStatus returns the HTTP status code associated with err's
// kind, or 500 if err isn't a *Error or its kind has no mapped
// status (the pack/pin/funds kinds, which should never be written
// to an HTTP response in the first place).
func HTTPStatus(err error) int {
	var e *Error
	if !asError(err, &e) {
		return 500
	}
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return 500
}

// asError is a plain type assertion standing in for errors.As with a
// concrete (non-interface) target. It does not unwrap err.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

// IsInsufficientFunds reports whether err is itself a *Error of kind
// KindInsufficientFunds, the one backend failure spec §7 singles out
// for a funding-hint log line. A wrapped error is not recognized.
func IsInsufficientFunds(err error) bool {
	var e *Error
	return asError(err, &e) && e.Kind == KindInsufficientFunds
}

var (
	ErrBadRequest        = func(format string, args ...any) *Error { return New(KindBadRequest, format, args...) }
	ErrUnauthorized      = func(format string, args ...any) *Error { return New(KindUnauthorized, format, args...) }
	ErrNotFound          = func(format string, args ...any) *Error { return New(KindNotFound, format, args...) }
	ErrDigestMismatch    = func(format string, args ...any) *Error { return New(KindDigestMismatch, format, args...) }
	ErrPack              = func(format string, args ...any) *Error { return New(KindPack, format, args...) }
	ErrBackendPin        = func(format string, args ...any) *Error { return New(KindBackendPin, format, args...) }
	ErrInsufficientFunds = func(format string, args ...any) *Error { return New(KindInsufficientFunds, format, args...) }
)

// WriteBody is the JSON shape written for any user-visible error,
// matching the "{error}" contract in spec §7.
type WriteBody struct {
	ErrorMsg string `json:"error"`
}
