// Package macaroon implements macaroon-style bearer credentials: tokens
// carrying an attenuating list of caveats bound to an issuer's root secret
// by a chained keyed-MAC, with support for third-party caveats discharged
// by auxiliary tokens.
//
// The basic laws of macaroons:
//
//   - Anybody holding a Token can append a caveat to it, even if they
//     didn't mint it.
//   - Appending a caveat can only further restrict what the token
//     authorizes; it can never increase access.
//   - Given a Token with caveats (A, B, C), it's cryptographically
//     impossible to remove any caveat and produce a valid (A, B) token.
//
// A first-party caveat is checked locally: its caveat_id is predicate
// text (see Predicate), checked against a Verifier's notion of the
// current request context. A third-party caveat instead names a
// condition some other system must attest to: the holder obtains a
// discharge Token from that third party -- cryptographically bound to
// the caveat's verification_key_id -- binds it to the primary token's
// current signature, and presents both together.
//
// # Cryptography
//
// The chain MAC is HMAC-SHA3-256 (see crypto.go).
//
// # Wire format
//
// A Token encodes to MessagePack, JSON, URL-safe base64 (wrapping
// MessagePack), or lowercase hex (wrapping MessagePack) -- see codec.go.
// All four decode back to the same logical Token.
package macaroon

import (
	"strconv"

	"golang.org/x/exp/slices"
)

// Token is an ordered caveat chain plus the current head of its chained
// MAC. It is immutable except by appending caveats (AddFirstParty,
// AddThirdParty) or producing a bound copy (BindDischarge) -- neither
// mutates the receiver.
//
// Field order here is the wire field order for the MessagePack encoding
// (codec.go): changing it changes the byte-exact layout other
// implementations depend on.
type Token struct {
	Location   *string  `msgpack:"location" json:"location,omitempty"`
	Identifier []byte   `msgpack:"identifier" json:"identifier"`
	Caveats    []Caveat `msgpack:"caveats" json:"caveats"`
	Signature  []byte   `msgpack:"signature" json:"signature"`
}

// New mints a fresh token with no caveats: signature = mac(rootKey,
// identifier).
func New(rootKey SigningKey, identifier []byte, location string) *Token {
	var loc *string
	if location != "" {
		loc = &location
	}
	return &Token{
		Location:   loc,
		Identifier: append([]byte(nil), identifier...),
		Caveats:    nil,
		Signature:  mac([]byte(rootKey), identifier),
	}
}

// AddFirstParty returns a copy of t with a first-party caveat appended:
// signature <- bind(signature, predicate).
func (t *Token) AddFirstParty(predicate []byte) *Token {
	return t.append(FirstParty(predicate))
}

// AddThirdParty returns a copy of t with a third-party caveat appended,
// carrying verificationKeyID verbatim. signature <- bind(signature,
// verificationKeyID).
func (t *Token) AddThirdParty(caveatID, verificationKeyID []byte, location string) *Token {
	return t.append(ThirdParty(caveatID, verificationKeyID, location))
}

func (t *Token) append(c Caveat) *Token {
	next := &Token{
		Location:   t.Location,
		Identifier: t.Identifier,
		Caveats:    append(append([]Caveat(nil), t.Caveats...), c),
		Signature:  bind(t.Signature, c.bindingInput()),
	}
	return next
}

// CreateDischarge mints a fresh token under vk whose identifier is
// caveatID: a primary token minted under the verification key rather than
// a root key, meant to discharge a third-party caveat with that caveat_id.
func CreateDischarge(vk SigningKey, caveatID []byte, location string) *Token {
	return New(vk, caveatID, location)
}

// BindDischarge returns a copy of discharge whose signature has been
// replaced with mac(discharge.signature, primary.signature). Binding is
// not idempotent across different primaries: the same discharge bound to
// two different primary signatures yields two different bound
// signatures; binding twice to the same primary signature is
// deterministic. BindDischarge never mutates discharge.
func (t *Token) BindDischarge(discharge *Token) *Token {
	bound := &Token{
		Location:   discharge.Location,
		Identifier: discharge.Identifier,
		Caveats:    discharge.Caveats,
		Signature:  mac(discharge.Signature, t.Signature),
	}
	return bound
}

// PrepareForRequest returns t followed by each of discharges bound to t,
// in order: the bundle a holder actually presents on the wire.
func (t *Token) PrepareForRequest(discharges ...*Token) []*Token {
	out := make([]*Token, 0, len(discharges)+1)
	out = append(out, t)
	for _, d := range discharges {
		out = append(out, t.BindDischarge(d))
	}
	return out
}

// CaveatCount returns the number of caveats on t.
func (t *Token) CaveatCount() int {
	return len(t.Caveats)
}

// IsUnrestricted reports whether t carries no caveats at all -- an
// all-access credential.
func (t *Token) IsUnrestricted() bool {
	return len(t.Caveats) == 0
}

// Verify checks the central invariant of t under rootKey, then every
// caveat: first-party caveats against verifier, third-party caveats by
// locating a matching bound discharge in boundDischarges and rebuilding
// its own chain under the shared verification key.
//
// Verification order is insertion order. Discharge lookup by identifier
// is first-match: duplicate identifiers among boundDischarges are not
// rejected, only the first match is consulted.
func (t *Token) Verify(rootKey SigningKey, verifier Verifier, boundDischarges []*Token) error {
	s := mac([]byte(rootKey), t.Identifier)
	for _, c := range t.Caveats {
		s = bind(s, c.bindingInput())
	}
	if !sigEqual(s, t.Signature) {
		return ErrInvalidSignature
	}

	for _, c := range t.Caveats {
		if c.IsFirstParty() {
			if err := verifier.VerifyCaveat(c.CaveatID); err != nil {
				return CaveatViolation(err.Error())
			}
			continue
		}

		if err := verifyThirdParty(t, c, boundDischarges, verifier); err != nil {
			return err
		}
	}

	return nil
}

func verifyThirdParty(primary *Token, c Caveat, boundDischarges []*Token, verifier Verifier) error {
	idx := slices.IndexFunc(boundDischarges, func(d *Token) bool {
		return d != nil && string(d.Identifier) == string(c.CaveatID)
	})
	if idx < 0 {
		return CaveatViolation("missing discharge for third-party caveat")
	}
	discharge := boundDischarges[idx]

	if c.VerificationKeyID == nil {
		return InvalidFormat("third-party caveat missing verification_key_id")
	}

	for _, dc := range discharge.Caveats {
		if dc.IsThirdParty() {
			return InvalidFormat("nested third-party caveat inside discharge is not supported")
		}
	}

	sPrime := mac(c.VerificationKeyID, discharge.Identifier)
	for _, dc := range discharge.Caveats {
		sPrime = bind(sPrime, dc.bindingInput())
	}

	expected := mac(sPrime, primary.Signature)
	if !sigEqual(expected, discharge.Signature) {
		return ErrInvalidSignature
	}

	for _, dc := range discharge.Caveats {
		if err := verifier.VerifyCaveat(dc.CaveatID); err != nil {
			return CaveatViolation(err.Error())
		}
	}

	return nil
}

// String renders a token for logging/debugging. Not a wire format.
func (t *Token) String() string {
	loc := ""
	if t.Location != nil {
		loc = *t.Location
	}
	return "Token(" + loc + "," + string(t.Identifier) + "," + strconv.Itoa(len(t.Caveats)) + " caveats)"
}
