package security

import (
	"crypto/rand"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/stregato/owndata/internal/core"
)

// KeySize is the length of a symmetric epoch key.
const KeySize = chacha20poly1305.KeySize

// GenerateKey returns a fresh random symmetric key.
func GenerateKey() []byte {
	return RandomBytes(KeySize)
}

func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Seal encrypts data with the given key using an AEAD. The random nonce
// is prepended to the ciphertext. Empty plaintexts are valid.
func Seal(data, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "invalid encryption key: %v", err)
	}
	nonce := RandomBytes(aead.NonceSize())
	return aead.Seal(nonce, nonce, data, nil), nil
}

// Open decrypts data produced by Seal. Truncated or tampered input
// surfaces as a crypto error, never as partial plaintext.
func Open(data, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "invalid decryption key: %v", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, core.Errf(core.CodeCrypto, "ciphertext too short: %d bytes", len(data))
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "decryption failed: %v", err)
	}
	return plain, nil
}

// Hash returns the blake2b-256 digest of data.
func Hash(data []byte) []byte {
	h := blake2b.Sum256(data)
	return h[:]
}
