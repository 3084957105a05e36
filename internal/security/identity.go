package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/stregato/owndata/internal/core"
)

const (
	cryptKeySize = curve25519.ScalarSize // x25519, encryption
	signKeySize  = ed25519.PublicKeySize // ed25519, signatures
)

// ID is the addressable identifier of a principal. It encodes the
// public half of both keypairs, optionally prefixed by a nickname
// ("nick:base64"). The nickname is cosmetic; equality and key lookup
// always use the encoded key material.
type ID string

// Identity is an asymmetric keypair pair: x25519 for encryption and
// ed25519 for signatures. Private is empty on public copies.
type Identity struct {
	Id      ID        `json:"i"`
	Nick    string    `json:"n,omitempty"`
	ModTime time.Time `json:"m"`
	Private string    `json:"p,omitempty"`
}

// NewIdentity generates a fresh identity. The nick must not contain a
// colon, which separates the nick from the key material in the ID.
func NewIdentity(nick string) (*Identity, error) {
	if strings.Contains(nick, ":") {
		return nil, core.Errf(core.CodeConflict, "invalid nick %q: colon is reserved", nick)
	}

	cryptPriv := make([]byte, cryptKeySize)
	if _, err := rand.Read(cryptPriv); err != nil {
		return nil, err
	}
	clampX25519(cryptPriv)
	cryptPub, err := curve25519.X25519(cryptPriv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	id := EncodeBinary(append(append([]byte{}, cryptPub...), signPub...))
	if nick != "" {
		id = nick + ":" + id
	}

	return &Identity{
		Id:      ID(id),
		Nick:    nick,
		ModTime: core.Now(),
		Private: EncodeBinary(append(append([]byte{}, cryptPriv...), signPriv...)),
	}, nil
}

// Public strips the private key.
func (i Identity) Public() Identity {
	return Identity{Id: i.Id, Nick: i.Nick, ModTime: i.ModTime}
}

// Nick returns the nickname part of the ID, or a short key prefix when
// the ID carries no nickname.
func (id ID) Nick() string {
	s := string(id)
	if idx := strings.Index(s, ":"); idx > 0 {
		return s[:idx]
	}
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func (id ID) String() string { return string(id) }

// CastID validates that s encodes a well-formed public identity.
func CastID(s string) (ID, error) {
	id := ID(s)
	if _, _, err := id.publicKeys(); err != nil {
		return "", err
	}
	return id, nil
}

// publicKeys decodes the x25519 and ed25519 public keys from an ID.
func (id ID) publicKeys() (cryptPub, signPub []byte, err error) {
	s := string(id)
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	data, err := DecodeBinary(s)
	if err != nil {
		return nil, nil, core.Errf(core.CodeNotFound, "malformed id %q: %v", id, err)
	}
	if len(data) != cryptKeySize+signKeySize {
		return nil, nil, core.Errf(core.CodeNotFound, "malformed id %q: wrong key length %d", id, len(data))
	}
	return data[:cryptKeySize], data[cryptKeySize:], nil
}

// privateKeys decodes the private halves from Identity.Private.
func (i *Identity) privateKeys() (cryptPriv, signPriv []byte, err error) {
	data, err := DecodeBinary(i.Private)
	if err != nil {
		return nil, nil, core.Errf(core.CodeCrypto, "malformed private key: %v", err)
	}
	if len(data) != cryptKeySize+ed25519.PrivateKeySize {
		return nil, nil, core.Errf(core.CodeCrypto, "malformed private key: wrong length %d", len(data))
	}
	return data[:cryptKeySize], data[cryptKeySize:], nil
}

func clampX25519(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
