package macaroon

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	msgpack "github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack renders t as self-describing MessagePack: the canonical
// binary wire format, and the one the other three codecs wrap.
func (t *Token) EncodeMsgpack() ([]byte, error) {
	buf, err := msgpack.Marshal(t)
	if err != nil {
		return nil, DeserializationError("msgpack encode failed", err)
	}
	return buf, nil
}

// DecodeMsgpack parses MessagePack produced by EncodeMsgpack.
func DecodeMsgpack(buf []byte) (*Token, error) {
	var t Token
	if err := msgpack.Unmarshal(buf, &t); err != nil {
		return nil, DeserializationError("msgpack decode failed", err)
	}
	return &t, nil
}

// EncodeJSON renders t as JSON, with binary fields (identifier, signature,
// caveat_id, verification_key_id) base64-encoded by encoding/json's
// default []byte handling.
func (t *Token) EncodeJSON() ([]byte, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, DeserializationError("json encode failed", err)
	}
	return buf, nil
}

// EncodeJSONIndent is EncodeJSON with two-space indentation, for
// human-readable debugging output.
func (t *Token) EncodeJSONIndent() ([]byte, error) {
	buf, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, DeserializationError("json encode failed", err)
	}
	return buf, nil
}

// DecodeJSON parses JSON produced by EncodeJSON or EncodeJSONIndent.
func DecodeJSON(buf []byte) (*Token, error) {
	var t Token
	if err := json.Unmarshal(buf, &t); err != nil {
		return nil, DeserializationError("json decode failed", err)
	}
	return &t, nil
}

// EncodeBase64 renders t as MessagePack wrapped in unpadded URL-safe
// base64.
func (t *Token) EncodeBase64() (string, error) {
	buf, err := t.EncodeMsgpack()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) (*Token, error) {
	buf, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, DeserializationError("base64 decode failed", err)
	}
	return DecodeMsgpack(buf)
}

// EncodeHex renders t as MessagePack wrapped in lowercase hex.
func (t *Token) EncodeHex() (string, error) {
	buf, err := t.EncodeMsgpack()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DecodeHex reverses EncodeHex.
func DecodeHex(s string) (*Token, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, DeserializationError("hex decode failed", err)
	}
	return DecodeMsgpack(buf)
}

// EncodeBundle joins a primary token and its discharges into a single
// comma-separated, base64-encoded string -- enough for
// PrepareForRequest's output to actually go out over the wire (e.g. in an
// Authorization header), without committing to any particular header
// scheme or prefix labels.
func EncodeBundle(tokens ...*Token) (string, error) {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		b64, err := t.EncodeBase64()
		if err != nil {
			return "", err
		}
		parts = append(parts, b64)
	}
	return strings.Join(parts, ","), nil
}

// DecodeBundle reverses EncodeBundle: it splits on commas and decodes each
// part as base64-wrapped MessagePack. The first returned token is the
// primary; the rest are bound discharges, in the order EncodeBundle saw
// them.
func DecodeBundle(bundle string) ([]*Token, error) {
	if strings.TrimSpace(bundle) == "" {
		return nil, InvalidFormat("empty token bundle")
	}

	parts := strings.Split(bundle, ",")
	out := make([]*Token, 0, len(parts))
	for _, p := range parts {
		t, err := DecodeBase64(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
