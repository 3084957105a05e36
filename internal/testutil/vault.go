// Package testutil provides fixtures shared by the subsystem tests: an
// in-memory vault with one creator identity, plus helpers to join the
// same vault from a second catalog the way a second device or member
// would.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/vault"
)

// Member is one identity with its own local catalog, connected to a
// shared vault.
type Member struct {
	Identity *security.Identity
	DB       *sqlx.DB
	Vault    *vault.Vault
}

// NewMemVault creates a vault on a fresh in-memory store and returns
// its creator. The store URL is unique per call, so tests never share
// state by accident.
func NewMemVault(t *testing.T, cfg vault.Config) (Member, string) {
	t.Helper()
	url := "mem://" + uuid.NewString()

	identity, err := security.NewIdentity("alice")
	require.NoError(t, err)

	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := vault.Create(db, identity, url, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	return Member{Identity: identity, DB: db, Vault: v}, url
}

// Join connects a new identity to an existing vault through its own
// catalog. The identity must already have been granted access.
func Join(t *testing.T, identity *security.Identity, url string) Member {
	t.Helper()

	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := vault.Open(db, identity, url)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	return Member{Identity: identity, DB: db, Vault: v}
}

// NewIdentity creates a throwaway identity with the given nick.
func NewIdentity(t *testing.T, nick string) *security.Identity {
	t.Helper()
	identity, err := security.NewIdentity(nick)
	require.NoError(t, err)
	return identity
}
