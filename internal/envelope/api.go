// Package envelope flattens the vault API into handle-based operations
// with uniform JSON results, the shape a foreign-language binding or a
// thin RPC layer consumes. Resources opened through the envelope are
// referenced by generation-checked handles, never by pointers.
package envelope

import (
	"github.com/stregato/owndata/internal/comm"
	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/db"
	"github.com/stregato/owndata/internal/fs"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/vault"
)

var loge = core.Log("envelope")

// API is the envelope surface. One API owns one local catalog and one
// identity; every vault, session and cursor opened through it lives in
// a registry until closed.
type API struct {
	DB       *sqlx.DB
	Identity *security.Identity

	vaults *Registry[*vault.Vault]
	fss    *Registry[*fs.FileSystem]
	dbs    *Registry[*db.Database]
	rows   *Registry[*db.Rows]
	txs    *Registry[*db.Transaction]
	comms  *Registry[*comm.Comm]
}

// New opens the catalog at dbPath and restores the stored identity; a
// fresh catalog gets a new identity under the given nick.
func New(dbPath, nick string) (*API, error) {
	catalog, err := sqlx.Open(dbPath)
	if err != nil {
		return nil, err
	}
	identity, err := loadIdentity(catalog, nick)
	if err != nil {
		catalog.Close()
		return nil, err
	}
	return &API{
		DB:       catalog,
		Identity: identity,
		vaults:   NewRegistry[*vault.Vault]("vault"),
		fss:      NewRegistry[*fs.FileSystem]("fs"),
		dbs:      NewRegistry[*db.Database]("database"),
		rows:     NewRegistry[*db.Rows]("rows"),
		txs:      NewRegistry[*db.Transaction]("transaction"),
		comms:    NewRegistry[*comm.Comm]("comm"),
	}, nil
}

// loadIdentity returns the identity stored in the catalog, creating
// and persisting one on first use.
func loadIdentity(catalog *sqlx.DB, nick string) (*security.Identity, error) {
	var identity security.Identity
	err := config.GetStruct(catalog, config.NodeSettings, "identity", &identity)
	if err == nil {
		return &identity, nil
	}
	if err != sqlx.ErrNoRows {
		return nil, err
	}

	fresh, err := security.NewIdentity(nick)
	if err != nil {
		return nil, err
	}
	if err := config.SetStruct(catalog, config.NodeSettings, "identity", fresh); err != nil {
		return nil, err
	}
	loge.Infow("new identity", "id", fresh.Id)
	return fresh, nil
}

// Close releases every open resource and the catalog.
func (a *API) Close() error {
	return a.DB.Close()
}
