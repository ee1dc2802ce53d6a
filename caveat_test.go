package macaroon

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestCaveatConstructors(t *testing.T) {
	fp := FirstParty([]byte("account = alice"))
	assert.True(t, fp.IsFirstParty())
	assert.False(t, fp.IsThirdParty())
	assert.Equal(t, []byte("account = alice"), fp.CaveatID)
	assert.Zero(t, fp.VerificationKeyID)
	assert.Zero(t, fp.Location)

	tp := ThirdParty([]byte("auth"), []byte("vk"), "https://auth.example.com")
	assert.True(t, tp.IsThirdParty())
	assert.False(t, tp.IsFirstParty())
	assert.Equal(t, []byte("auth"), tp.CaveatID)
	assert.Equal(t, []byte("vk"), tp.VerificationKeyID)
	assert.NotZero(t, tp.Location)
	assert.Equal(t, "https://auth.example.com", *tp.Location)
}

func TestCaveatBindingInput(t *testing.T) {
	fp := FirstParty([]byte("x = 1"))
	assert.Equal(t, []byte("x = 1"), fp.bindingInput())

	tp := ThirdParty([]byte("cid"), []byte("vkid"), "loc")
	assert.Equal(t, []byte("vkid"), tp.bindingInput())
}
