package vault

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// CredentialVault binds the primitive encrypt/decrypt operations to one
// long-lived key so callers never handle key material directly. It also
// JSON-serializes structured credential sets and supports key rotation.
type CredentialVault struct {
	mu  sync.RWMutex
	key []byte
}

// NewCredentialVault validates and copies the key. The copy keeps the vault
// immune to callers mutating their slice afterwards.
func NewCredentialVault(key []byte) (*CredentialVault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	k := make([]byte, keySize)
	copy(k, key)
	return &CredentialVault{key: k}, nil
}

// NewCredentialVaultFromEnv reads and parses the key from the named
// environment variable.
func NewCredentialVaultFromEnv(name string) (*CredentialVault, error) {
	key, err := KeyFromEnv(name)
	if err != nil {
		return nil, err
	}
	return NewCredentialVault(key)
}

// KeyFromEnv reads and parses the key from the named environment variable.
func KeyFromEnv(name string) ([]byte, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrEncryption, name)
	}
	return ParseKey(raw)
}

// ParseKey decodes a 32-byte key from its textual form: 64 hex characters
// or standard base64.
func ParseKey(s string) ([]byte, error) {
	if len(s) == 2*keySize {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: key is neither %d hex chars nor valid base64", ErrEncryption, 2*keySize)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: decoded to %d bytes", ErrInvalidKeySize, len(key))
	}
	return key, nil
}

// EncryptJSON marshals v and encrypts the JSON bytes.
func (cv *CredentialVault) EncryptJSON(v any) (*EncryptedBlob, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling credentials: %v", ErrEncryption, err)
	}
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return Encrypt(plaintext, cv.key)
}

// DecryptJSON decrypts a blob and unmarshals the plaintext into out.
func (cv *CredentialVault) DecryptJSON(blob *EncryptedBlob, out any) error {
	cv.mu.RLock()
	key := cv.key
	cv.mu.RUnlock()

	plaintext, err := Decrypt(blob, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: unmarshaling credentials: %v", ErrDecryption, err)
	}
	return nil
}

// EncryptToString encrypts v and returns the blob as a compact JSON string,
// the form stored in the credentials table.
func (cv *CredentialVault) EncryptToString(v any) (string, error) {
	blob, err := cv.EncryptJSON(v)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling blob: %v", ErrEncryption, err)
	}
	return string(raw), nil
}

// DecryptFromString parses a stored blob string and decrypts it into out.
func (cv *CredentialVault) DecryptFromString(s string, out any) error {
	var blob EncryptedBlob
	if err := json.Unmarshal([]byte(s), &blob); err != nil {
		return fmt.Errorf("%w: malformed blob envelope", ErrDecryption)
	}
	return cv.DecryptJSON(&blob, out)
}

// ReEncrypt decrypts a blob under the current key and seals it under
// newKey. Used during rotation before RotateKey swaps the bound key.
func (cv *CredentialVault) ReEncrypt(blob *EncryptedBlob, newKey []byte) (*EncryptedBlob, error) {
	if len(newKey) != keySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(newKey))
	}
	cv.mu.RLock()
	key := cv.key
	cv.mu.RUnlock()

	plaintext, err := Decrypt(blob, key)
	if err != nil {
		return nil, err
	}
	return Encrypt(plaintext, newKey)
}

// RotateKey swaps the bound key. Callers re-encrypt existing rows with
// ReEncrypt first; blobs sealed under the old key are unreadable afterwards.
func (cv *CredentialVault) RotateKey(newKey []byte) error {
	if len(newKey) != keySize {
		return fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(newKey))
	}
	k := make([]byte, keySize)
	copy(k, newKey)

	cv.mu.Lock()
	cv.key = k
	cv.mu.Unlock()
	return nil
}
