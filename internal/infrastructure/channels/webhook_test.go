package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, payload []byte) (b64, hexSig string) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sum := mac.Sum(nil)
	return base64.StdEncoding.EncodeToString(sum), hex.EncodeToString(sum)
}

func TestVerifyHMAC(t *testing.T) {
	payload := []byte(`{"order_id":"ORD-1"}`)
	b64, hexSig := sign("topsecret", payload)

	assert.True(t, VerifyHMACBase64("topsecret", payload, b64))
	assert.True(t, VerifyHMACHex("topsecret", payload, hexSig))

	// Wrong secret.
	assert.False(t, VerifyHMACBase64("other", payload, b64))
	assert.False(t, VerifyHMACHex("other", payload, hexSig))

	// Tampered payload.
	assert.False(t, VerifyHMACBase64("topsecret", []byte(`{"order_id":"ORD-2"}`), b64))

	// No secret configured: always false, never a panic or an error.
	assert.False(t, VerifyHMACBase64("", payload, b64))
	assert.False(t, VerifyHMACHex("", payload, hexSig))

	// Empty signature.
	assert.False(t, VerifyHMACBase64("topsecret", payload, ""))
}

func TestSignHMACHex_RoundTrip(t *testing.T) {
	payload := []byte(`{"page":1}`)
	sig := SignHMACHex("signing-key", payload)
	assert.True(t, VerifyHMACHex("signing-key", payload, sig))
}
