package macaroon

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestMintIsDeterministic(t *testing.T) {
	t1 := New(SigningKey("k"), []byte("id"), "")
	t2 := New(SigningKey("k"), []byte("id"), "")
	assert.Equal(t, t1.Signature, t2.Signature)
}

func TestEmptyTokenVerifies(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "")

	assert.NoError(t, tok.Verify(SigningKey("k"), AcceptAll(), nil))

	err := tok.Verify(SigningKey("k2"), AcceptAll(), nil)
	assert.Error(t, err)
	assert.True(t, err.(*Error).Kind == KindInvalidSignature)
}

func TestContextCaveat(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "").
		AddFirstParty([]byte("account = alice"))

	assert.NoError(t, tok.Verify(SigningKey("k"), EmptyContext().With("account", "alice"), nil))

	err := tok.Verify(SigningKey("k"), EmptyContext().With("account", "bob"), nil)
	assert.Error(t, err)
	assert.True(t, err.(*Error).Kind == KindCaveatViolation)
}

func TestNumericComparison(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "").
		AddFirstParty([]byte("count < 100"))

	assert.NoError(t, tok.Verify(SigningKey("k"), EmptyContext().With("count", "50"), nil))
	assert.Error(t, tok.Verify(SigningKey("k"), EmptyContext().With("count", "150"), nil))
}

func TestChainExtensionIsOrderSensitive(t *testing.T) {
	base := New(SigningKey("k"), []byte("id"), "")

	ab := base.AddFirstParty([]byte("a")).AddFirstParty([]byte("b"))
	ba := base.AddFirstParty([]byte("b")).AddFirstParty([]byte("a"))

	assert.NotEqual(t, ab.Signature, ba.Signature)
}

func TestVerifyMintInverse(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "").
		AddFirstParty([]byte("a")).
		AddFirstParty([]byte("b")).
		AddFirstParty([]byte("c"))

	assert.NoError(t, tok.Verify(SigningKey("k"), AcceptAll(), nil))
}

func TestTamperedSignatureFailsVerification(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "")
	tampered := *tok
	tampered.Signature = append([]byte(nil), tok.Signature...)
	tampered.Signature[0] ^= 0x01

	err := tampered.Verify(SigningKey("k"), AcceptAll(), nil)
	assert.Error(t, err)
	assert.True(t, err.(*Error).Kind == KindInvalidSignature)
}

func TestCaveatCountAndIsUnrestricted(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "")
	assert.True(t, tok.IsUnrestricted())
	assert.Equal(t, 0, tok.CaveatCount())

	tok = tok.AddFirstParty([]byte("a"))
	assert.False(t, tok.IsUnrestricted())
	assert.Equal(t, 1, tok.CaveatCount())
}

func TestBindDischargeDeterminism(t *testing.T) {
	primary := New(SigningKey("rk"), []byte("p"), "")
	discharge := CreateDischarge(SigningKey("vk"), []byte("auth"), "")

	bound1 := primary.BindDischarge(discharge)
	bound2 := primary.BindDischarge(discharge)
	assert.Equal(t, bound1.Signature, bound2.Signature)
	assert.NotEqual(t, bound1.Signature, discharge.Signature)

	otherPrimary := New(SigningKey("rk2"), []byte("p2"), "")
	bound3 := otherPrimary.BindDischarge(discharge)
	assert.NotEqual(t, bound1.Signature, bound3.Signature)
}

func TestBindDischargeDoesNotMutateDischarge(t *testing.T) {
	primary := New(SigningKey("rk"), []byte("p"), "")
	discharge := CreateDischarge(SigningKey("vk"), []byte("auth"), "")
	originalSig := append([]byte(nil), discharge.Signature...)

	_ = primary.BindDischarge(discharge)

	assert.Equal(t, originalSig, discharge.Signature)
}

func TestThirdPartyFlow(t *testing.T) {
	primary := New(SigningKey("rk"), []byte("p"), "").
		AddThirdParty([]byte("auth"), []byte("vk"), "https://auth.example.com")

	discharge := CreateDischarge(SigningKey("vk"), []byte("auth"), "").
		AddFirstParty([]byte("level >= 5"))

	bound := primary.PrepareForRequest(discharge)
	assert.Equal(t, 2, len(bound))

	ok := bound[0].Verify(SigningKey("rk"), EmptyContext().With("level", "10"), bound[1:])
	assert.NoError(t, ok)

	failLevel := bound[0].Verify(SigningKey("rk"), EmptyContext().With("level", "3"), bound[1:])
	assert.Error(t, failLevel)
	assert.True(t, failLevel.(*Error).Kind == KindCaveatViolation)

	missing := bound[0].Verify(SigningKey("rk"), EmptyContext().With("level", "10"), nil)
	assert.Error(t, missing)
	assert.True(t, missing.(*Error).Kind == KindCaveatViolation)
}

func TestVerifyThirdPartyRejectsMissingVerificationKeyID(t *testing.T) {
	// A caveat lacking verification_key_id is classified first-party by
	// IsFirstParty and never reaches verifyThirdParty through the normal
	// Verify path. This exercises verifyThirdParty's own defensive check
	// directly, the same invariant original_source's verify_third_party_caveat
	// asserts even though its caller already guarantees it can't fire.
	primary := New(SigningKey("rk"), []byte("p"), "")
	malformed := Caveat{CaveatID: []byte("auth"), Location: strPtr("loc")}

	discharge := CreateDischarge(SigningKey("vk"), []byte("auth"), "")
	bound := primary.BindDischarge(discharge)

	err := verifyThirdParty(primary, malformed, []*Token{bound}, AcceptAll())
	assert.Error(t, err)
	assert.True(t, err.(*Error).Kind == KindInvalidFormat)
}

func TestNestedThirdPartyCaveatInDischargeRejected(t *testing.T) {
	primary := New(SigningKey("rk"), []byte("p"), "").
		AddThirdParty([]byte("auth"), []byte("vk"), "loc")

	discharge := CreateDischarge(SigningKey("vk"), []byte("auth"), "").
		AddThirdParty([]byte("nested"), []byte("vk2"), "loc2")

	bound := primary.BindDischarge(discharge)

	err := primary.Verify(SigningKey("rk"), AcceptAll(), []*Token{bound})
	assert.Error(t, err)
	assert.True(t, err.(*Error).Kind == KindInvalidFormat)
}

func TestSerializationBridge(t *testing.T) {
	tok := New(SigningKey("k"), []byte("id"), "").
		AddFirstParty([]byte("a")).
		AddFirstParty([]byte("b"))

	b64, err := tok.EncodeBase64()
	assert.NoError(t, err)

	decoded, err := DecodeBase64(b64)
	assert.NoError(t, err)

	assert.NoError(t, decoded.Verify(SigningKey("k"), AcceptAll(), nil))
}

func strPtr(s string) *string { return &s }
