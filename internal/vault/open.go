package vault

import (
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

var logv = core.Log("vault")

// Open opens an existing vault at url as the given identity. The
// location must contain a vault and the identity must be a member of
// at least one group.
func Open(db *sqlx.DB, identity *security.Identity, url string) (*Vault, error) {
	store, err := storage.Open(url)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		ID:       store.ID(),
		URL:      url,
		DB:       db,
		Store:    store,
		Identity: identity,
	}

	var m manifest
	err = storage.ReadMsgPack(v.ctx(), store, manifestName, &m)
	if core.IsNotFound(err) {
		store.Close()
		return nil, core.Errf(core.CodeNotFound, "no vault at %s", v.ID)
	}
	if err != nil {
		store.Close()
		return nil, err
	}
	v.CreatorID = m.CreatorID
	v.Config = m.Config

	groups, err := v.GetGroups()
	if err != nil {
		store.Close()
		return nil, err
	}

	var member bool
	for _, users := range groups {
		if users.Contains(identity.Id) {
			member = true
			break
		}
	}
	if !member {
		store.Close()
		return nil, core.Errf(core.CodeAuthorization, "user %s is not a member of vault %s", identity.Id.Nick(), v.ID)
	}

	logv.Debugw("vault opened", "id", v.ID, "user", identity.Id.Nick())
	return v, nil
}
