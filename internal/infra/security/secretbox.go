package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SecretBox seals the per-session model API key before it is stored.
type SecretBox interface {
	Seal(sessionID, plaintext string) (string, error)
	Open(sessionID, sealed string) (string, error)
}

var (
	_ SecretBox = (*AESBox)(nil)
	_ SecretBox = PlainBox{}
)

// sealPrefix tags the stored format so a future key rotation can tell
// generations apart.
const sealPrefix = "v1:"

var ErrSealed = errors.New("security: sealed value is malformed or belongs to another session")

// AESBox is AES-GCM with a fresh nonce per value. The session ID is the
// associated data, so a sealed key only opens for the session it was stored
// under.
type AESBox struct {
	aead cipher.AEAD
}

// NewAESBox accepts a raw 16, 24 or 32 byte key, or the same as hex.
func NewAESBox(key string) (*AESBox, error) {
	k, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &AESBox{aead: aead}, nil
}

func parseKey(key string) ([]byte, error) {
	switch len(key) {
	case 16, 24, 32:
		return []byte(key), nil
	case 48, 64:
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes (or hex of those), got %d chars", len(key))
}

// Seal returns "v1:" + base64url(nonce || ciphertext).
func (b *AESBox) Seal(sessionID, plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(sessionID))
	return sealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (b *AESBox) Open(sessionID, sealed string) (string, error) {
	body, ok := strings.CutPrefix(sealed, sealPrefix)
	if !ok {
		return "", ErrSealed
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) < b.aead.NonceSize() {
		return "", ErrSealed
	}
	n := b.aead.NonceSize()
	pt, err := b.aead.Open(nil, raw[:n], raw[n:], []byte(sessionID))
	if err != nil {
		return "", ErrSealed
	}
	return string(pt), nil
}

// PlainBox stores keys as given. Used when no encryption key is configured.
type PlainBox struct{}

func (PlainBox) Seal(_, plaintext string) (string, error) { return plaintext, nil }
func (PlainBox) Open(_, sealed string) (string, error)    { return sealed, nil }
