package security

import (
	"crypto/ed25519"

	"github.com/stregato/owndata/internal/core"
)

// Sign signs data with the identity's ed25519 key.
func Sign(identity *Identity, data []byte) ([]byte, error) {
	_, signPriv, err := identity.privateKeys()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(ed25519.PrivateKey(signPriv), data), nil
}

// Verify reports whether signature was produced over data by the holder
// of id's private signing key. A malformed id verifies as false.
func Verify(id ID, data, signature []byte) bool {
	_, signPub, err := id.publicKeys()
	if err != nil {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(signPub), data, signature)
}

// VerifyErr is a convenience for call sites that treat a failed
// verification as an error rather than a boolean.
func VerifyErr(id ID, data, signature []byte) error {
	if !Verify(id, data, signature) {
		return core.Errf(core.CodeCrypto, "signature does not match id %s", id.Nick())
	}
	return nil
}
