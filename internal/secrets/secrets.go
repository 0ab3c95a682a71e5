package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Codec encrypts and decrypts stored secrets (tokens, client secrets) with
// AES-256-GCM. Payload format: base64(iv).base64(tag).base64(ciphertext).
type Codec struct {
	key []byte
}

// New derives the codec key: a base64 value decoding to 32 bytes is used
// directly, anything else is hashed with SHA-256.
func New(keyMaterial string) (*Codec, error) {
	if keyMaterial == "" {
		return nil, errors.New("secrets: empty encryption key")
	}
	if raw, err := base64.StdEncoding.DecodeString(keyMaterial); err == nil && len(raw) == 32 {
		return &Codec{key: raw}, nil
	}
	sum := sha256.Sum256([]byte(keyMaterial))
	return &Codec{key: sum[:]}, nil
}

func (c *Codec) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	aead, err := c.gcm()
	if err != nil {
		return "", err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the tag; split it back out to keep the stored format stable.
	tagStart := len(sealed) - 16
	enc := base64.StdEncoding
	return enc.EncodeToString(iv) + "." + enc.EncodeToString(sealed[tagStart:]) + "." + enc.EncodeToString(sealed[:tagStart]), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Codec) Decrypt(payload string) (string, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return "", errors.New("secrets: invalid encrypted payload format")
	}
	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secrets: decode iv: %w", err)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secrets: decode tag: %w", err)
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}
	aead, err := c.gcm()
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plain), nil
}
