// Package vault encrypts provider credentials at rest with AES-256-GCM.
// Decryption fails closed: tampering, a wrong key, or an unsupported format
// surfaces as an error, never as garbled plaintext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	// Algorithm identifies the only cipher this version writes and accepts.
	Algorithm = "aes-256-gcm"
	// FormatVersion is bumped on any incompatible EncryptedBlob change.
	FormatVersion = "1"

	keySize  = 32
	ivSize   = 16
	tagSize  = 16
	saltSize = 16

	// scrypt parameters for password-derived keys.
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// Error categories. Encryption errors mean "misconfigured" (bad key length,
// unsupported algorithm, missing salt); decryption errors mean "tampered or
// wrong key". Callers rely on the distinction.
var (
	ErrEncryption = errors.New("vault: encryption error")
	ErrDecryption = errors.New("vault: decryption error")

	ErrInvalidKeySize       = fmt.Errorf("%w: key must be exactly %d bytes", ErrEncryption, keySize)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrEncryption)
	ErrUnsupportedVersion   = fmt.Errorf("%w: unsupported format version", ErrEncryption)
	ErrMissingSalt          = fmt.Errorf("%w: blob has no salt for key derivation", ErrEncryption)
)

// EncryptedBlob is the persisted/transmitted ciphertext envelope. All byte
// fields are standard base64. Algorithm and Version are checked on every
// decrypt so future algorithm migrations cannot silently misread old rows.
type EncryptedBlob struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Salt       string `json:"salt,omitempty"`
	Algorithm  string `json:"algorithm"`
	Version    string `json:"version"`
}

// Encrypt seals plaintext under a 32-byte key with a fresh random 16-byte
// IV, so two encryptions of identical input never produce the same blob.
func Encrypt(plaintext, key []byte) (*EncryptedBlob, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: reading random IV: %v", ErrEncryption, err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return &EncryptedBlob{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Algorithm:  Algorithm,
		Version:    FormatVersion,
	}, nil
}

// Decrypt opens a blob. Any authentication failure (wrong key, flipped
// ciphertext bit, swapped tag) returns a decryption error with no plaintext.
func Decrypt(blob *EncryptedBlob, key []byte) ([]byte, error) {
	if blob.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, blob.Algorithm)
	}
	if blob.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, blob.Version)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed IV", ErrDecryption)
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes", ErrDecryption, ivSize)
	}
	ct, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	}
	tag, err := base64.StdEncoding.DecodeString(blob.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed auth tag", ErrDecryption)
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return plaintext, nil
}

// EncryptWithPassword derives a key from the password with scrypt under a
// fresh random salt, then encrypts. The salt travels inside the blob.
func EncryptWithPassword(plaintext []byte, password string) (*EncryptedBlob, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: reading random salt: %v", ErrEncryption, err)
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	blob, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, err
	}
	blob.Salt = base64.StdEncoding.EncodeToString(salt)
	return blob, nil
}

// DecryptWithPassword re-derives the key from the blob's salt and decrypts.
func DecryptWithPassword(blob *EncryptedBlob, password string) ([]byte, error) {
	if blob.Salt == "" {
		return nil, ErrMissingSalt
	}
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed salt", ErrDecryption)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	return Decrypt(blob, key)
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt: %v", ErrEncryption, err)
	}
	return key, nil
}

// newGCM validates the key and builds a 16-byte-nonce GCM instance.
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return gcm, nil
}
