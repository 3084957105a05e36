package comm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/testutil"
	"github.com/stregato/owndata/internal/vault"
)

func TestBroadcastAndReceive(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})
	ac := Open(alice.Vault)

	bob := testutil.NewIdentity(t, "bob")
	_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)
	member := testutil.Join(t, bob, url)
	bc := Open(member.Vault)

	sent, err := ac.Broadcast(vault.UserGroup, Message{Text: "hi"})
	require.NoError(t, err)
	assert.NotZero(t, sent.ID)
	assert.Equal(t, alice.Identity.Id, sent.Sender)

	msgs, err := bc.Receive(vault.UserGroup.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, alice.Identity.Id, msgs[0].Sender)

	// consuming never hides the message from other members
	msgs, err = ac.Receive(vault.UserGroup.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Text)

	// the cursor advanced: nothing pending anymore
	msgs, err = bc.Receive(vault.UserGroup.String(), ReceiveOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReceiveNonMember(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	_, err := c.Receive("team", ReceiveOptions{})
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}

func TestReceiveLimit(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	for _, text := range []string{"one", "two", "three"} {
		_, err := c.Broadcast(vault.UserGroup, Message{Text: text})
		require.NoError(t, err)
	}

	msgs, err := c.Receive(vault.UserGroup.String(), ReceiveOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "two", msgs[1].Text)

	msgs, err = c.Receive(vault.UserGroup.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "three", msgs[0].Text)
}

func TestRewind(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	first, err := c.Broadcast(vault.UserGroup, Message{Text: "a"})
	require.NoError(t, err)
	second, err := c.Broadcast(vault.UserGroup, Message{Text: "b"})
	require.NoError(t, err)

	dest := vault.UserGroup.String()
	msgs, err := c.Receive(dest, ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// the id is a cursor value: rewinding just below the second message
	// replays it alone, the cursor need not name an existing message
	require.NoError(t, c.Rewind(dest, second.ID-1))
	msgs, err = c.Receive(dest, ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Text)

	// rewinding onto the first message replays everything after it
	require.NoError(t, c.Rewind(dest, first.ID))
	msgs, err = c.Receive(dest, ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Text)

	// zero rewinds to the beginning
	require.NoError(t, c.Rewind(dest, 0))
	msgs, err = c.Receive(dest, ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Text)

	// a cursor ahead of the newest message is rejected
	err = c.Rewind(dest, core.SnowID())
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestDirectMessage(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})
	ac := Open(alice.Vault)

	bob := testutil.NewIdentity(t, "bob")
	carol := testutil.NewIdentity(t, "carol")
	_, err := alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id, carol.Id)
	require.NoError(t, err)

	_, err = ac.Send(bob.Id, Message{Text: "just for you"})
	require.NoError(t, err)

	// the recipient reads it on the destination named by their own id
	bc := Open(testutil.Join(t, bob, url).Vault)
	msgs, err := bc.Receive(bob.Id.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "just for you", msgs[0].Text)
	assert.Equal(t, alice.Identity.Id, msgs[0].Sender)

	// the sender can read back their own direct message
	msgs, err = ac.Receive(bob.Id.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "just for you", msgs[0].Text)

	// a third member cannot open it: the record is skipped
	cc := Open(testutil.Join(t, carol, url).Vault)
	msgs, err = cc.Receive(bob.Id.String(), ReceiveOptions{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFilePayload(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	src := filepath.Join(t.TempDir(), "attachment.bin")
	require.NoError(t, os.WriteFile(src, []byte("attached bytes"), 0o644))

	_, err := c.Broadcast(vault.UserGroup, Message{Text: "see attachment", File: src})
	require.NoError(t, err)

	msgs, err := c.Receive(vault.UserGroup.String(), ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, src, msgs[0].File)

	dest := filepath.Join(t.TempDir(), "download.bin")
	require.NoError(t, c.Download(msgs[0], dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("attached bytes"), data)

	// a message without payload has nothing to download
	plain, err := c.Broadcast(vault.UserGroup, Message{Text: "no payload"})
	require.NoError(t, err)
	err = c.Download(plain, dest)
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestConcurrentReceive(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	dest := vault.UserGroup.String()
	require.NoError(t, c.acquire(dest))

	_, err := c.Receive(dest, ReceiveOptions{})
	assert.True(t, core.IsConcurrency(err), "expected concurrency error, got %v", err)

	// other destinations are unaffected
	_, err = c.Broadcast(vault.UserGroup, Message{Text: "x"})
	require.NoError(t, err)

	c.release(dest)
	msgs, err := c.Receive(dest, ReceiveOptions{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestBroadcastNonMember(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	c := Open(alice.Vault)

	_, err := c.Broadcast("team", Message{Text: "x"})
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}
