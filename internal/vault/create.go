package vault

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

// Create initializes a new vault at url for the given identity. The
// location must not already contain a vault. The creator becomes the
// first member of both well-known groups and the first epoch key of
// each is generated and distributed.
func Create(db *sqlx.DB, identity *security.Identity, url string, cfg Config) (*Vault, error) {
	store, err := storage.Open(url)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		ID:        store.ID(),
		URL:       url,
		DB:        db,
		Store:     store,
		Config:    cfg,
		CreatorID: identity.Id,
		Identity:  identity,
	}
	ctx := v.ctx()

	if _, err := store.Stat(ctx, manifestName); err == nil {
		store.Close()
		return nil, core.Errf(core.CodeConflict, "location %s already contains a vault", v.ID)
	}

	m := manifest{
		CreatorID: identity.Id,
		Config:    cfg,
		CreatedAt: core.Now(),
	}
	payload, err := msgpack.Marshal(m.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	m.Signature, err = security.Sign(identity, payload)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := storage.WriteMsgPack(ctx, store, manifestName, m); err != nil {
		store.Close()
		return nil, err
	}

	// bootstrap membership: the creator joins both well-known groups
	if _, err := v.UpdateGroup(AdminGroup, Grant, identity.Id); err != nil {
		store.Close()
		return nil, err
	}
	if _, err := v.UpdateGroup(UserGroup, Grant, identity.Id); err != nil {
		store.Close()
		return nil, err
	}

	logv.Infow("vault created", "id", v.ID, "creator", identity.Id.Nick())
	return v, nil
}
