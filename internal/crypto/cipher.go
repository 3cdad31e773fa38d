package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo separates record keys from any other key derived from the same master
const hkdfInfo = "magabot-record-encryption"

// Sealer encrypts and decrypts stored records
type Sealer interface {
	Seal(owner, recordID string, plaintext []byte) (string, error)
	Open(owner, recordID string, sealed string) ([]byte, error)
}

// RecordCipher seals case and session records with AES-256-GCM. Each owner gets
// a key derived with HKDF, and the record id is bound as additional data so a
// sealed blob cannot be moved to another record.
type RecordCipher struct {
	masterKey []byte
}

// NewRecordCipher parses a 32-byte hex master key (64 characters)
func NewRecordCipher(masterKeyHex string) (*RecordCipher, error) {
	if masterKeyHex == "" {
		return nil, errors.New("encryption master key is required")
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format (must be hex): %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes (64 hex characters), got %d bytes", len(masterKey))
	}
	return &RecordCipher{masterKey: masterKey}, nil
}

func (c *RecordCipher) ownerAEAD(owner string) (cipher.AEAD, error) {
	if owner == "" {
		return nil, errors.New("owner is required for key derivation")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.masterKey, []byte(owner), []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext and returns base64 (nonce prepended)
func (c *RecordCipher) Seal(owner, recordID string, plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	gcm, err := c.ownerAEAD(owner)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, plaintext, []byte(recordID))), nil
}

// Open reverses Seal
func (c *RecordCipher) Open(owner, recordID string, sealed string) ([]byte, error) {
	if sealed == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	gcm, err := c.ownerAEAD(owner)
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, []byte(recordID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Plain is the Sealer used when no master key is configured. It only base64-encodes.
type Plain struct{}

// Seal implements Sealer
func (Plain) Seal(_, _ string, plaintext []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

// Open implements Sealer
func (Plain) Open(_, _ string, sealed string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(sealed)
}
