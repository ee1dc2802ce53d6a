package macaroon

import "fmt"

// Kind classifies the errors this package returns. Callers pattern-match on
// Kind (via errors.As into *Error, or errors.Is against the sentinels below)
// to decide HTTP status, audit logging, etc.
type Kind int

const (
	// KindInvalidSignature means the MAC chain (primary or discharge)
	// didn't reproduce the token's recorded signature.
	KindInvalidSignature Kind = iota + 1

	// KindCaveatViolation means a first-party caveat failed verification,
	// or a discharge was missing for a third-party caveat.
	KindCaveatViolation

	// KindDeserializationError means a codec failed to decode a token. The
	// codecs in codec.go also report encode failures under this kind.
	KindDeserializationError

	// KindInvalidFormat means a malformed predicate, a third-party caveat
	// missing its verification_key_id, or non-UTF-8 predicate bytes.
	KindInvalidFormat

	// KindInvalidKeyLength is reserved; the HMAC-SHA3-256 primitive
	// accepts keys of any length and never raises it.
	KindInvalidKeyLength

	// KindCryptoError is reserved for primitive-level failures.
	KindCryptoError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidSignature:
		return "invalid signature"
	case KindCaveatViolation:
		return "caveat violation"
	case KindDeserializationError:
		return "deserialization error"
	case KindInvalidFormat:
		return "invalid format"
	case KindInvalidKeyLength:
		return "invalid key length"
	case KindCryptoError:
		return "crypto error"
	default:
		return "unknown error"
	}
}

// Error is the tagged-sum error type returned by every operation in this
// package that can fail. Verification fails on the first failing caveat; the
// position of the failure is not disclosed beyond Detail, so as not to leak
// caveat ordering to an attacker who's already past signature validation.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is the sentinel for e's Kind, so callers can
// write errors.Is(err, macaroon.ErrInvalidSignature) instead of reaching
// into the concrete type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(k Kind, detail string, cause error) *Error {
	return &Error{Kind: k, Detail: detail, cause: cause}
}

// Sentinels for errors.Is. Compare against these rather than constructing
// *Error values by hand.
var (
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature}
	ErrCaveatViolation      = &Error{Kind: KindCaveatViolation}
	ErrDeserializationError = &Error{Kind: KindDeserializationError}
	ErrInvalidFormat        = &Error{Kind: KindInvalidFormat}
	ErrInvalidKeyLength     = &Error{Kind: KindInvalidKeyLength}
	ErrCryptoError          = &Error{Kind: KindCryptoError}
)

// CaveatViolation builds a KindCaveatViolation *Error with the given reason.
func CaveatViolation(reason string) *Error {
	return newError(KindCaveatViolation, reason, nil)
}

// InvalidFormat builds a KindInvalidFormat *Error with the given detail.
func InvalidFormat(detail string) *Error {
	return newError(KindInvalidFormat, detail, nil)
}

// DeserializationError builds a KindDeserializationError *Error wrapping the
// underlying codec failure.
func DeserializationError(detail string, cause error) *Error {
	return newError(KindDeserializationError, detail, cause)
}
