package vault

import (
	"fmt"
	"path"

	"github.com/patrickmn/go-cache"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

// Key is one symmetric epoch key of a group.
type Key []byte

// Keystore is the replicated form of a group's key chain: the full
// chain, AEAD-sealed under a one-time master key, with the master key
// wrapped separately for every current member, signed by an admin.
type Keystore struct {
	EnvelopeKeys map[security.ID][]byte `msgpack:"e"`
	Data         []byte                 `msgpack:"d"`
	Signer       security.ID            `msgpack:"k"`
	Signature    []byte                 `msgpack:"s"`
}

// GetKeys returns the epoch keys of a group ordered newest-first,
// limited to the most recent minEpochCount entries (all when
// minEpochCount is zero or exceeds the chain length). The caller must
// be a member of the group.
func (v *Vault) GetKeys(groupName GroupName, minEpochCount int) ([]Key, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	keys, err := v.epochKeys(groupName)
	if err != nil {
		return nil, err
	}

	// newest-first
	out := make([]Key, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		out = append(out, keys[i])
	}
	if minEpochCount > 0 && minEpochCount < len(out) {
		out = out[:minEpochCount]
	}
	return out, nil
}

// ActiveKey resolves the current encryption epoch of a group: the key
// and its index in the append-only chain. Callers must hold the vault
// read lock (RLock) across the encryption that uses the key.
func (v *Vault) ActiveKey(groupName GroupName) (Key, int, error) {
	keys, err := v.epochKeys(groupName)
	if err != nil {
		return nil, 0, err
	}
	return keys[len(keys)-1], len(keys) - 1, nil
}

// KeyForEpoch resolves the key of a specific epoch. An epoch beyond
// the caller's keystore window yields an insufficient-keys error.
func (v *Vault) KeyForEpoch(groupName GroupName, epoch int) (Key, error) {
	keys, err := v.epochKeys(groupName)
	if err != nil {
		return nil, err
	}
	if epoch < 0 || epoch >= len(keys) {
		return nil, core.Errf(core.CodeInsufficientKeys,
			"epoch %d of group %s is not covered by the available %d keys", epoch, groupName, len(keys))
	}
	return keys[epoch], nil
}

// epochKeys returns the chain oldest-first, creating the first epoch on
// demand for a brand-new group. Membership is re-checked on every call;
// a removed member loses access immediately.
func (v *Vault) epochKeys(groupName GroupName) ([]Key, error) {
	groups, err := v.GetGroups()
	if err != nil {
		return nil, err
	}
	if !groups[groupName].Contains(v.Identity.Id) {
		return nil, core.Errf(core.CodeAuthorization, "user %s is not in group %s",
			v.Identity.Id.Nick(), groupName)
	}

	if cached, found := keysCache.Get(v.cacheKey(groupName)); found && !v.IsUpdated(keysDir) {
		return cached.([]Key), nil
	}

	keys, err := v.readKeystore(groupName, groups)
	if core.IsNotFound(err) {
		// no keystore yet: first epoch, distributed by an admin
		keys, err = v.readKeysFromDB(groupName)
		if err == sqlx.ErrNoRows {
			keys = []Key{security.GenerateKey()}
			err = nil
		}
		if err != nil {
			return nil, err
		}
		if err = v.writeKeystore(groupName, groups, keys); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := v.writeKeysToDB(groupName, keys); err != nil {
		return nil, err
	}
	keysCache.Set(v.cacheKey(groupName), keys, cache.DefaultExpiration)
	v.Observe(keysDir)
	return keys, nil
}

// rotateKeys rewrites the keystore for the current members, appending a
// fresh epoch when addEpoch is set (membership revocation). Called with
// the vault write lock held.
func (v *Vault) rotateKeys(groupName GroupName, groups Groups, addEpoch bool) ([]Key, error) {
	keys, err := v.readKeysFromDB(groupName)
	if err == sqlx.ErrNoRows {
		keys = []Key{security.GenerateKey()}
	} else if err != nil {
		return nil, err
	}

	if addEpoch {
		keys = append(keys, security.GenerateKey())
	}
	if err := v.writeKeystore(groupName, groups, keys); err != nil {
		return nil, err
	}
	if err := v.writeKeysToDB(groupName, keys); err != nil {
		return nil, err
	}
	keysCache.Set(v.cacheKey(groupName), keys, cache.DefaultExpiration)

	logv.Debugw("keystore rewritten", "vault", v.ID, "group", groupName,
		"epochs", len(keys), "rotated", addEpoch)
	return keys, nil
}

func (v *Vault) keystoreName(groupName GroupName) string {
	return path.Join(keysDir, fmt.Sprintf("%s.ks", groupName))
}

// readKeystore fetches and opens the replicated keystore. It verifies
// the admin signature before trusting any key material.
func (v *Vault) readKeystore(groupName GroupName, groups Groups) ([]Key, error) {
	var ks Keystore
	if err := storage.ReadMsgPack(v.ctx(), v.Store, v.keystoreName(groupName), &ks); err != nil {
		return nil, err
	}

	if !groups[AdminGroup].Contains(ks.Signer) {
		return nil, core.Errf(core.CodeCrypto, "keystore of %s signed by non-admin %s", groupName, ks.Signer.Nick())
	}
	if err := security.VerifyErr(ks.Signer, ks.Data, ks.Signature); err != nil {
		return nil, err
	}

	envelope, ok := ks.EnvelopeKeys[v.Identity.Id]
	if !ok {
		return nil, core.Errf(core.CodeAuthorization, "user %s has no envelope key for group %s",
			v.Identity.Id.Nick(), groupName)
	}
	masterKey, err := security.EcDecrypt(v.Identity, envelope)
	if err != nil {
		return nil, err
	}

	data, err := security.Open(ks.Data, masterKey)
	if err != nil {
		return nil, err
	}

	var keys []Key
	if err := msgpack.Unmarshal(data, &keys); err != nil {
		return nil, core.Errf(core.CodeCrypto, "corrupted keystore for group %s: %v", groupName, err)
	}
	return keys, nil
}

// writeKeystore seals the chain under a fresh master key and wraps that
// key for every member of the group.
func (v *Vault) writeKeystore(groupName GroupName, groups Groups, keys []Key) error {
	if !groups[AdminGroup].Contains(v.Identity.Id) {
		return core.Errf(core.CodeAuthorization, "user %s has no admin rights on vault %s",
			v.Identity.Id.Nick(), v.ID)
	}

	data, err := msgpack.Marshal(keys)
	if err != nil {
		return err
	}

	masterKey := security.GenerateKey()
	sealed, err := security.Seal(data, masterKey)
	if err != nil {
		return err
	}

	ks := Keystore{
		EnvelopeKeys: map[security.ID][]byte{},
		Data:         sealed,
		Signer:       v.Identity.Id,
	}
	for userID := range groups[groupName] {
		envelope, err := security.EcEncrypt(userID, masterKey)
		if err != nil {
			logv.Warnw("cannot wrap master key", "user", userID.Nick(), "err", err)
			continue
		}
		ks.EnvelopeKeys[userID] = envelope
	}
	ks.Signature, err = security.Sign(v.Identity, sealed)
	if err != nil {
		return err
	}

	if err := storage.WriteMsgPack(v.ctx(), v.Store, v.keystoreName(groupName), ks); err != nil {
		return err
	}
	return v.Touch(keysDir)
}

func (v *Vault) writeKeysToDB(groupName GroupName, keys []Key) error {
	return config.SetStruct(v.DB, config.NodeKeystore, v.cacheKey(groupName), keys)
}

func (v *Vault) readKeysFromDB(groupName GroupName) ([]Key, error) {
	var keys []Key
	err := config.GetStruct(v.DB, config.NodeKeystore, v.cacheKey(groupName), &keys)
	return keys, err
}
