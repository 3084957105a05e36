package vault_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/testutil"
	"github.com/stregato/owndata/internal/vault"
)

func TestCreateBootstrapsGroups(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{Description: "test vault"})

	groups, err := alice.Vault.GetGroups()
	require.NoError(t, err)

	assert.True(t, groups[vault.AdminGroup].Contains(alice.Identity.Id))
	assert.True(t, groups[vault.UserGroup].Contains(alice.Identity.Id))

	names, err := alice.Vault.ListGroups()
	require.NoError(t, err)
	assert.ElementsMatch(t, []vault.GroupName{vault.AdminGroup, vault.UserGroup}, names)
}

func TestCreateTwiceConflicts(t *testing.T) {
	_, url := testutil.NewMemVault(t, vault.Config{})

	bob := testutil.NewIdentity(t, "bob")
	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = vault.Create(db, bob, url, vault.Config{})
	assert.True(t, core.IsConflict(err), "expected conflict, got %v", err)
}

func TestOpenEmptyLocation(t *testing.T) {
	carol := testutil.NewIdentity(t, "carol")
	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = vault.Open(db, carol, "mem://"+uuid.NewString())
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestOpenNonMember(t *testing.T) {
	_, url := testutil.NewMemVault(t, vault.Config{})

	carol := testutil.NewIdentity(t, "carol")
	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = vault.Open(db, carol, url)
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}

func TestGrantAndJoin(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})

	bob := testutil.NewIdentity(t, "bob")
	groups, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)
	assert.True(t, groups[vault.UserGroup].Contains(bob.Id))
	assert.False(t, groups[vault.AdminGroup].Contains(bob.Id))

	member := testutil.Join(t, bob, url)
	names, err := member.Vault.ListGroups()
	require.NoError(t, err)
	assert.Equal(t, []vault.GroupName{vault.UserGroup}, names)

	// bob is no admin and cannot change membership
	dave := testutil.NewIdentity(t, "dave")
	_, err = member.Vault.UpdateGroup(vault.UserGroup, vault.Grant, dave.Id)
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}

func TestRedundantChangesAreSkipped(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})

	// granting an existing member or revoking an absent one leaves the
	// chain and the key chain untouched
	before, err := alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)

	groups, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, alice.Identity.Id)
	require.NoError(t, err)
	assert.Len(t, groups[vault.UserGroup], 1)

	bob := testutil.NewIdentity(t, "bob")
	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Revoke, bob.Id)
	require.NoError(t, err)

	after, err := alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}

func TestLastAdminProtected(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})

	_, err := alice.Vault.UpdateGroup(vault.AdminGroup, vault.Revoke, alice.Identity.Id)
	assert.True(t, core.IsConflict(err), "expected conflict, got %v", err)

	// with a second admin on board, the remaining one can remove the first
	bob := testutil.NewIdentity(t, "bob")
	_, err = alice.Vault.UpdateGroup(vault.AdminGroup, vault.Grant, bob.Id)
	require.NoError(t, err)

	member := testutil.Join(t, bob, url)
	groups, err := member.Vault.UpdateGroup(vault.AdminGroup, vault.Revoke, alice.Identity.Id)
	require.NoError(t, err)
	assert.False(t, groups[vault.AdminGroup].Contains(alice.Identity.Id))
	assert.True(t, groups[vault.AdminGroup].Contains(bob.Id))
}

func TestRevokeRotatesEpoch(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})

	keys, err := alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	firstKey, _, err := alice.Vault.ActiveKey(vault.UserGroup)
	require.NoError(t, err)

	bob := testutil.NewIdentity(t, "bob")
	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)

	// grant does not rotate
	keys, err = alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Revoke, bob.Id)
	require.NoError(t, err)

	// revoke appends a fresh epoch, older epochs stay readable
	keys, err = alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	activeKey, epoch, err := alice.Vault.ActiveKey(vault.UserGroup)
	require.NoError(t, err)
	assert.Equal(t, 1, epoch)
	assert.NotEqual(t, []byte(firstKey), []byte(activeKey))

	oldKey, err := alice.Vault.KeyForEpoch(vault.UserGroup, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte(firstKey), []byte(oldKey))
}

func TestRevokedMemberLosesAccess(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})

	bob := testutil.NewIdentity(t, "bob")
	_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)

	member := testutil.Join(t, bob, url)
	_, err = member.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)

	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Revoke, bob.Id)
	require.NoError(t, err)

	_, err = member.Vault.GetKeys(vault.UserGroup, 0)
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
	_, _, err = member.Vault.ActiveKey(vault.UserGroup)
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}

func TestGetKeysWindow(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})

	// rotate twice to get three epochs
	bob := testutil.NewIdentity(t, "bob")
	for i := 0; i < 2; i++ {
		_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
		require.NoError(t, err)
		_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Revoke, bob.Id)
		require.NoError(t, err)
	}

	all, err := alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// newest-first: the head of the full list is the active key
	active, _, err := alice.Vault.ActiveKey(vault.UserGroup)
	require.NoError(t, err)
	assert.Equal(t, []byte(active), []byte(all[0]))

	recent, err := alice.Vault.GetKeys(vault.UserGroup, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, []byte(all[0]), []byte(recent[0]))
	assert.Equal(t, []byte(all[1]), []byte(recent[1]))

	// asking for more than exist is not an error
	wide, err := alice.Vault.GetKeys(vault.UserGroup, 10)
	require.NoError(t, err)
	assert.Len(t, wide, 3)
}

func TestKeyForEpochOutOfRange(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})

	_, err := alice.Vault.KeyForEpoch(vault.UserGroup, 7)
	assert.True(t, core.IsInsufficientKeys(err), "expected insufficient keys, got %v", err)
	_, err = alice.Vault.KeyForEpoch(vault.UserGroup, -1)
	assert.True(t, core.IsInsufficientKeys(err), "expected insufficient keys, got %v", err)
}

func TestMembersSeeSameKeys(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})

	bob := testutil.NewIdentity(t, "bob")
	_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)

	member := testutil.Join(t, bob, url)
	aliceKeys, err := alice.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)
	bobKeys, err := member.Vault.GetKeys(vault.UserGroup, 0)
	require.NoError(t, err)

	require.Equal(t, len(aliceKeys), len(bobKeys))
	for i := range aliceKeys {
		assert.Equal(t, []byte(aliceKeys[i]), []byte(bobKeys[i]))
	}
}

func TestGuardMarkers(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})

	const dir = "inbox"
	assert.True(t, alice.Vault.IsUpdated(dir), "unknown dirs read as updated")

	require.NoError(t, alice.Vault.Touch(dir))
	assert.False(t, alice.Vault.IsUpdated(dir), "the toucher already observed its own write")

	bob := testutil.NewIdentity(t, "bob")
	_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)
	member := testutil.Join(t, bob, url)

	assert.True(t, member.Vault.IsUpdated(dir))
	member.Vault.Observe(dir)
	assert.False(t, member.Vault.IsUpdated(dir))
}
