package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	envelopeSeparator = ":"
	envelopeSegments  = 3
)

// ErrTamperedOrCorrupt is returned when an envelope is malformed or fails
// authentication (wrong key, truncation or modified bytes).
var ErrTamperedOrCorrupt = errors.New("encrypted value is tampered or corrupt")

// Cipher seals and opens token envelopes with a fixed operator key.
// It is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher for the given 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes (256 bits), got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// envelope. The empty string is sealed like any other value.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, envelopeSeparator), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	nonce, tag, ciphertext, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrTamperedOrCorrupt)
	}
	return string(plaintext), nil
}

// IsEnvelope reports whether value has the shape of an envelope: exactly three
// segments with a 24 hex character nonce and a 32 hex character tag. It does
// not decrypt and does not validate the hex alphabet.
func IsEnvelope(value string) bool {
	parts := strings.Split(value, envelopeSeparator)
	if len(parts) != envelopeSegments {
		return false
	}
	return len(parts[0]) == hex.EncodedLen(NonceSize) && len(parts[1]) == hex.EncodedLen(TagSize)
}

func parseEnvelope(envelope string) (nonce, tag, ciphertext []byte, err error) {
	parts := strings.Split(envelope, envelopeSeparator)
	if len(parts) != envelopeSegments {
		return nil, nil, nil, fmt.Errorf("%w: expected %d segments, got %d", ErrTamperedOrCorrupt, envelopeSegments, len(parts))
	}

	if nonce, err = hex.DecodeString(parts[0]); err != nil || len(nonce) != NonceSize {
		return nil, nil, nil, fmt.Errorf("%w: invalid nonce", ErrTamperedOrCorrupt)
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil || len(tag) != TagSize {
		return nil, nil, nil, fmt.Errorf("%w: invalid auth tag", ErrTamperedOrCorrupt)
	}
	if ciphertext, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: invalid ciphertext", ErrTamperedOrCorrupt)
	}
	return nonce, tag, ciphertext, nil
}

// GenerateKey returns a new random 32-byte key. Generate once and store it
// securely; tokens sealed under a lost key cannot be recovered.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// ParseKey decodes an operator-supplied key given either as 64 hex
// characters or as base64 of 32 bytes.
func ParseKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("encryption key is required")
	}

	if len(encoded) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(encoded); err == nil {
			return key, nil
		}
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be 64 hex characters or base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return key, nil
}

// KeyToBase64 encodes a key for storage in configuration.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
