package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var sealKey []byte

const sealSalt = "shelivery-oauth-state"

var ErrSealNotConfigured = errors.New("state sealing not configured")

// ConfigureSealing derives the AES key used to seal values that travel through the browser.
func ConfigureSealing(secret string) {
	if secret == "" {
		return
	}
	reader := hkdf.New(sha256.New, []byte(secret), []byte(sealSalt), []byte("state-key"))
	sealKey = make([]byte, 32)
	if _, err := io.ReadFull(reader, sealKey); err != nil {
		panic(fmt.Sprintf("failed to derive seal key: %v", err))
	}
}

func newGCM() (cipher.AEAD, error) {
	if sealKey == nil {
		return nil, ErrSealNotConfigured
	}
	block, err := aes.NewCipher(sealKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM and returns a URL-safe string.
func Seal(plaintext []byte) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func Open(sealed string) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.New("sealed value too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func SealJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Seal(data)
}

func OpenJSON(sealed string, v interface{}) error {
	data, err := Open(sealed)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// RandomToken returns n random bytes as hex.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken is the lookup form stored for opaque tokens such as refresh tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateInviteCode returns an n-character code without ambiguous glyphs.
func GenerateInviteCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = inviteAlphabet[int(buf[i])%len(inviteAlphabet)]
	}
	return string(buf), nil
}
