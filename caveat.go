package macaroon

// Caveat is one restriction attached to a Token: either first-party
// (checked locally against a Verifier's context) or third-party (checked by
// locating a matching discharge Token at verification time).
//
// CaveatID is opaque: for a first-party caveat it's predicate text (see
// predicate.go); for a third-party caveat it's an identifier the third
// party recognizes as "the thing I need to discharge".
//
// VerificationKeyID is absent for a first-party caveat and present for a
// third-party one; it carries what the third party needs to recover the
// verification key it should mint its discharge under. This construction
// carries it verbatim rather than encrypting it, so a holder who can read
// the token can also read the verification key a third party will mint
// its discharge under.
//
// Location is an advisory hint about where to fetch a discharge. It never
// participates in the MAC chain.
type Caveat struct {
	CaveatID          []byte  `msgpack:"caveat_id" json:"caveat_id"`
	VerificationKeyID []byte  `msgpack:"verification_key_id" json:"verification_key_id,omitempty"`
	Location          *string `msgpack:"location" json:"location,omitempty"`
}

// FirstParty builds a first-party caveat carrying the given predicate text
// (or other application-defined caveat_id bytes).
func FirstParty(caveatID []byte) Caveat {
	return Caveat{CaveatID: caveatID}
}

// ThirdParty builds a third-party caveat. verificationKeyID and location
// are expected to both be present, preserving the invariant that
// verification_key_id.is_some() iff location.is_some().
func ThirdParty(caveatID, verificationKeyID []byte, location string) Caveat {
	return Caveat{
		CaveatID:          caveatID,
		VerificationKeyID: verificationKeyID,
		Location:          &location,
	}
}

// IsFirstParty reports whether this caveat is checked locally.
func (c Caveat) IsFirstParty() bool {
	return c.VerificationKeyID == nil
}

// IsThirdParty reports whether this caveat requires a discharge.
func (c Caveat) IsThirdParty() bool {
	return !c.IsFirstParty()
}

// bindingInput is the value folded into a chain signature for this caveat:
// the caveat_id for first-party caveats, the verification_key_id for
// third-party ones.
func (c Caveat) bindingInput() []byte {
	if c.IsFirstParty() {
		return c.CaveatID
	}
	return c.VerificationKeyID
}

// String renders a caveat for logging/debugging. Not a wire format.
func (c Caveat) String() string {
	if c.IsFirstParty() {
		return string(c.CaveatID)
	}
	loc := ""
	if c.Location != nil {
		loc = *c.Location
	}
	return "3p:" + string(c.CaveatID) + "@" + loc
}
