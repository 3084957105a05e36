package security

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/stregato/owndata/internal/core"
)

// DiffieHellmanKey derives the shared symmetric key between self and the
// peer identified by peer. Both sides derive the same key, which the
// messaging channel uses for direct (non-broadcast) messages.
func DiffieHellmanKey(self *Identity, peer ID) ([]byte, error) {
	cryptPriv, _, err := self.privateKeys()
	if err != nil {
		return nil, err
	}
	peerPub, _, err := peer.publicKeys()
	if err != nil {
		return nil, err
	}

	shared, err := curve25519.X25519(cryptPriv, peerPub)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "key agreement failed: %v", err)
	}

	kdf := hkdf.New(sha256.New, shared, nil, []byte("owndata-direct-message"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, core.Errf(core.CodeCrypto, "key derivation failed: %v", err)
	}
	return key, nil
}

// EcEncrypt encrypts data so that only the holder of peer's private key
// can read it: an ephemeral x25519 key agrees with the peer's public
// key, and the derived key seals the payload. Layout is
// ephemeralPub || sealed.
func EcEncrypt(peer ID, data []byte) ([]byte, error) {
	peerPub, _, err := peer.publicKeys()
	if err != nil {
		return nil, err
	}

	ephPriv := RandomBytes(curve25519.ScalarSize)
	clampX25519(ephPriv)
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "ephemeral key failed: %v", err)
	}

	shared, err := curve25519.X25519(ephPriv, peerPub)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "key agreement failed: %v", err)
	}
	key := deriveWrapKey(shared, ephPub, peerPub)

	sealed, err := Seal(data, key)
	if err != nil {
		return nil, err
	}
	return append(ephPub, sealed...), nil
}

// EcDecrypt reverses EcEncrypt with self's private key.
func EcDecrypt(self *Identity, data []byte) ([]byte, error) {
	if len(data) < curve25519.PointSize {
		return nil, core.Errf(core.CodeCrypto, "ciphertext too short: %d bytes", len(data))
	}
	ephPub, sealed := data[:curve25519.PointSize], data[curve25519.PointSize:]

	cryptPriv, _, err := self.privateKeys()
	if err != nil {
		return nil, err
	}
	selfPub, _, err := self.Id.publicKeys()
	if err != nil {
		return nil, err
	}

	shared, err := curve25519.X25519(cryptPriv, ephPub)
	if err != nil {
		return nil, core.Errf(core.CodeCrypto, "key agreement failed: %v", err)
	}
	key := deriveWrapKey(shared, ephPub, selfPub)

	return Open(sealed, key)
}

func deriveWrapKey(shared, ephPub, peerPub []byte) []byte {
	salt := append(append([]byte{}, ephPub...), peerPub...)
	kdf := hkdf.New(sha256.New, shared, salt, []byte("owndata-key-wrap"))
	key := make([]byte, KeySize)
	io.ReadFull(kdf, key)
	return key
}
