package macaroon

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"log"

	"golang.org/x/crypto/sha3"
)

// SignatureSize is the length in bytes of the chain signature carried in
// every Token and produced by mac.
const SignatureSize = 32

// SigningKey is a root key (for minting a primary token) or a verification
// key (for minting a discharge). Any byte length is accepted; mac handles
// oversize and undersize keys per RFC 2104.
type SigningKey []byte

// NewSigningKey returns a fresh random root/verification key.
func NewSigningKey() SigningKey {
	return SigningKey(rbuf(SignatureSize))
}

// mac computes HMAC-SHA3-256(key, message). Per RFC 2104, keys of any
// length -- including zero and keys larger than the hash's block size --
// are accepted without panicking.
func mac(key, message []byte) []byte {
	h := hmac.New(sha3.New256, key)
	h.Write(message)
	return h.Sum(nil)
}

// bind is mac with the previous signature used as the key: the sole source
// of the chained-MAC signature-chain discipline. Each caveat re-keys the
// next MAC with the signature the chain has accumulated so far, which is
// what lets a holder attenuate a token without ever learning the root key.
func bind(prevSig, message []byte) []byte {
	return mac(prevSig, message)
}

// sigEqual does a constant-time comparison, to avoid timing side-channels
// on the final signature check. Intermediate chain tags computed while
// walking a token's caveats don't need this -- they're derivable by anyone
// who can read the token.
func sigEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

func rbuf(sz int) []byte {
	buf := make([]byte, sz)
	if n, err := rand.Read(buf); n != sz || err != nil {
		log.Panicf("crypto random failed: %d read of %d: err: %s", n, sz, err)
	}
	return buf
}
