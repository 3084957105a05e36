package vault

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

// Store layout inside a vault location.
const (
	vaultDir     = ".vault"
	manifestName = ".vault/manifest"
	groupsDir    = "groups"
	chainName    = "groups/chain"
	keysDir      = "keys"
)

// Config is the immutable part of a vault set at creation.
type Config struct {
	Quota       int64  `json:"quota" msgpack:"q"`       // bytes, 0 means unbounded
	Description string `json:"description" msgpack:"d"` // free text
}

type manifest struct {
	CreatorID security.ID `msgpack:"c"`
	Config    Config      `msgpack:"f"`
	CreatedAt time.Time   `msgpack:"t"`
	Signature []byte      `msgpack:"s"`
}

// Vault is a session on one encrypted data location, bound to one
// identity. It owns the group/key state and hands out subsystem
// sessions (object store, structured store, messaging channel).
//
// The embedded lock serializes key-epoch rotation against concurrent
// encryption: rotation takes the write lock, operations that resolve
// the active epoch take the read lock. Each vault has its own lock;
// operations on different vaults never contend.
type Vault struct {
	ID        string // store identifier, credentials stripped
	URL       string
	DB        *sqlx.DB
	Store     storage.Store
	Config    Config
	CreatorID security.ID
	Identity  *security.Identity

	mu sync.RWMutex
}

// keysCache holds resolved epoch key chains for a short while to avoid
// re-reading keystores on every encryption.
var keysCache = cache.New(time.Minute, time.Hour)

// RLock/RUnlock expose the rotation lock to subsystems: any operation
// that resolves the active epoch holds the read lock for the duration
// of the encryption so a rotation cannot split it.
func (v *Vault) RLock()   { v.mu.RLock() }
func (v *Vault) RUnlock() { v.mu.RUnlock() }

// Close releases the vault session. The catalog database is shared and
// stays open; subsystem handles derived from this vault become invalid
// at the envelope layer.
func (v *Vault) Close() error {
	return v.Store.Close()
}

func (v *Vault) cacheKey(groupName GroupName) string {
	return path.Join(v.ID, string(groupName))
}

func (v *Vault) ctx() context.Context {
	return context.Background()
}
