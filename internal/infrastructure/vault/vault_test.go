package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"apiKey":"sk_live_123","apiSecret":"shhh"}`)

	blob, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.Equal(t, Algorithm, blob.Algorithm)
	assert.Equal(t, FormatVersion, blob.Version)
	assert.NotContains(t, blob.Ciphertext, "sk_live_123")

	got, err := Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("same input")

	a, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	b, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestEncrypt_RejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := Encrypt([]byte("x"), bytes.Repeat([]byte{1}, n))
		assert.ErrorIs(t, err, ErrInvalidKeySize, "key length %d", n)
		assert.ErrorIs(t, err, ErrEncryption)
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	blob, err := Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	got, err := Decrypt(blob, testKey(t))
	assert.ErrorIs(t, err, ErrDecryption)
	assert.Nil(t, got)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	tampered := *blob
	tampered.Ciphertext = blob.AuthTag // any wrong bytes
	_, err = Decrypt(&tampered, key)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecrypt_TamperedAlgorithmFails(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	blob.Algorithm = "aes-128-cbc"
	_, err = Decrypt(blob, key)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	blob.Algorithm = Algorithm
	blob.Version = "99"
	_, err = Decrypt(blob, key)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestPasswordDerivation_RoundTrip(t *testing.T) {
	blob, err := EncryptWithPassword([]byte("cod remittance creds"), "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, blob.Salt)

	got, err := DecryptWithPassword(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, []byte("cod remittance creds"), got)

	_, err = DecryptWithPassword(blob, "wrong password")
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptWithPassword_MissingSalt(t *testing.T) {
	blob, err := Encrypt([]byte("x"), testKey(t))
	require.NoError(t, err)

	_, err = DecryptWithPassword(blob, "pw")
	assert.ErrorIs(t, err, ErrMissingSalt)
}

func TestParseKey(t *testing.T) {
	key := testKey(t)

	fromHex, err := ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, fromHex)

	_, err = ParseKey("definitely not a key")
	assert.Error(t, err)

	_, err = ParseKey("c2hvcnQ=") // valid base64, wrong length
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestCredentialVault_StringRoundTrip(t *testing.T) {
	cv, err := NewCredentialVault(testKey(t))
	require.NoError(t, err)

	creds := map[string]string{"token": "tok_123", "shop": "acme.myshopify.com"}
	stored, err := cv.EncryptToString(creds)
	require.NoError(t, err)
	assert.NotContains(t, stored, "tok_123")

	var got map[string]string
	require.NoError(t, cv.DecryptFromString(stored, &got))
	assert.Equal(t, creds, got)
}

func TestCredentialVault_Rotation(t *testing.T) {
	oldKey, newKey := testKey(t), testKey(t)
	cv, err := NewCredentialVault(oldKey)
	require.NoError(t, err)

	blob, err := cv.EncryptJSON(map[string]string{"licenseKey": "BD-42"})
	require.NoError(t, err)

	rotated, err := cv.ReEncrypt(blob, newKey)
	require.NoError(t, err)
	require.NoError(t, cv.RotateKey(newKey))

	var got map[string]string
	require.NoError(t, cv.DecryptJSON(rotated, &got))
	assert.Equal(t, "BD-42", got["licenseKey"])

	// The pre-rotation blob is unreadable under the new key.
	err = cv.DecryptJSON(blob, &got)
	assert.ErrorIs(t, err, ErrDecryption)
}
