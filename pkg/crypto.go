package pkg

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const cipherInfo = "autoflow connection secrets"

var ErrMalformedSecret = errors.New("malformed encrypted secret")

// Cipher encrypts connection secrets (OAuth tokens, API keys) at rest.
// Encrypted values are "<nonce hex>:<ciphertext hex>".
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a XChaCha20-Poly1305 key from secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("encryption key is empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cipherInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plain with a fresh random nonce.
func (slf *Cipher) Encrypt(plain string) (string, error) {
	nonce := make([]byte, slf.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := slf.aead.Seal(nil, nonce, []byte(plain), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (slf *Cipher) Decrypt(encrypted string) (string, error) {
	nonceHex, sealedHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", ErrMalformedSecret
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != slf.aead.NonceSize() {
		return "", ErrMalformedSecret
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", ErrMalformedSecret
	}
	plain, err := slf.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plain), nil
}

// Nonce returns the nonce part of an encrypted value.
func Nonce(encrypted string) string {
	nonce, _, _ := strings.Cut(encrypted, ":")
	return nonce
}
