package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// VerifyHMACBase64 checks a base64-encoded HMAC-SHA256 signature over the
// raw payload bytes. Returns false, never an error, when the secret is empty
// so an unconfigured webhook can never be mistaken for a verified one.
func VerifyHMACBase64(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyHMACHex is VerifyHMACBase64 for providers that send hex signatures.
func VerifyHMACHex(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignHMACHex produces the hex HMAC-SHA256 signature providers like AJIO
// require on outbound request bodies.
func SignHMACHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
