package fs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/fs"
	"github.com/stregato/owndata/internal/testutil"
	"github.com/stregato/owndata/internal/vault"
)

func openFS(t *testing.T, m testutil.Member) *fs.FileSystem {
	t.Helper()
	f, err := fs.Open(m.Vault)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestPutGetRoundtrip(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	entry, err := f.PutData("notes/todo", []byte("buy milk"), "", fs.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "notes", entry.Dir)
	assert.Equal(t, "todo", entry.Name)
	assert.Equal(t, int64(8), entry.Size)
	assert.Equal(t, vault.UserGroup, entry.GroupName)
	assert.Equal(t, alice.Identity.Id, entry.Creator)

	data, err := f.GetData("notes/todo")
	require.NoError(t, err)
	assert.Equal(t, []byte("buy milk"), data)

	// slashes and redundant separators do not change the path
	data, err = f.GetData("/notes//todo")
	require.NoError(t, err)
	assert.Equal(t, []byte("buy milk"), data)
}

func TestPutEmptyData(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.PutData("empty", nil, "", fs.PutOptions{})
	require.NoError(t, err)

	data, err := f.GetData("empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPutReplacesSamePath(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	first, err := f.PutData("doc", []byte("v1"), "", fs.PutOptions{})
	require.NoError(t, err)
	second, err := f.PutData("doc", []byte("v2"), "", fs.PutOptions{})
	require.NoError(t, err)
	assert.Greater(t, uint64(second.ID), uint64(first.ID))

	data, err := f.GetData("doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	ls, err := f.List("", fs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, second.ID, ls[0].ID)
}

func TestPutExplicitID(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	first, err := f.PutData("doc", []byte("v1"), "", fs.PutOptions{})
	require.NoError(t, err)

	// reusing the id overwrites the content in place
	second, err := f.PutData("doc", []byte("v2"), "", fs.PutOptions{ID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	data, err := f.GetData("doc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	got, err := f.Stat("doc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestSecondMemberSeesEntries(t *testing.T) {
	alice, url := testutil.NewMemVault(t, vault.Config{})
	af := openFS(t, alice)

	_, err := af.PutData("shared/report", []byte("quarterly numbers"), "", fs.PutOptions{
		Tags: core.NewSet("finance"),
	})
	require.NoError(t, err)

	bob := testutil.NewIdentity(t, "bob")
	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)

	member := testutil.Join(t, bob, url)
	bf := openFS(t, member)

	entry, err := bf.Stat("shared/report")
	require.NoError(t, err)
	assert.Equal(t, alice.Identity.Id, entry.Creator)
	assert.True(t, entry.Tags.Contains("finance"))

	data, err := bf.GetData("shared/report")
	require.NoError(t, err)
	assert.Equal(t, []byte("quarterly numbers"), data)
}

func TestPutNonMemberGroup(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.PutData("p", []byte("x"), "team", fs.PutOptions{})
	assert.True(t, core.IsAuthorization(err), "expected authorization error, got %v", err)
}

func TestQuota(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{Quota: 100})
	f := openFS(t, alice)

	_, err := f.PutData("a", make([]byte, 80), "", fs.PutOptions{})
	require.NoError(t, err)

	_, err = f.PutData("b", make([]byte, 40), "", fs.PutOptions{})
	assert.True(t, core.IsQuotaExceeded(err), "expected quota error, got %v", err)

	_, err = f.PutData("c", make([]byte, 20), "", fs.PutOptions{})
	require.NoError(t, err)
}

func TestStatMissing(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.Stat("nowhere")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestList(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	entries := []struct {
		name string
		data string
		tags core.Set[string]
	}{
		{"docs/alpha.txt", "1", core.NewSet("draft")},
		{"docs/beta.md", "22", nil},
		{"docs/gamma.txt", "333", core.NewSet("draft", "urgent")},
		{"docs/delta.txt", "4444", nil},
	}
	for _, e := range entries {
		_, err := f.PutData(e.name, []byte(e.data), "", fs.PutOptions{Tags: e.tags})
		require.NoError(t, err)
	}

	names := func(ls []fs.File) []string {
		var out []string
		for _, l := range ls {
			out = append(out, l.Name)
		}
		return out
	}

	ls, err := f.List("docs", fs.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "beta.md", "delta.txt", "gamma.txt"}, names(ls))

	ls, err = f.List("docs", fs.ListOptions{Suffix: ".txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "delta.txt", "gamma.txt"}, names(ls))

	ls, err = f.List("docs", fs.ListOptions{Prefix: "g"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamma.txt"}, names(ls))

	ls, err = f.List("docs", fs.ListOptions{Tag: "draft"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "gamma.txt"}, names(ls))

	ls, err = f.List("docs", fs.ListOptions{OrderBy: "size", Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"delta.txt", "gamma.txt", "beta.md", "alpha.txt"}, names(ls))

	// paging partitions the listing without overlap
	page1, err := f.List("docs", fs.ListOptions{Limit: 3})
	require.NoError(t, err)
	page2, err := f.List("docs", fs.ListOptions{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "beta.md", "delta.txt"}, names(page1))
	assert.Equal(t, []string{"gamma.txt"}, names(page2))

	ls, err = f.List("docs", fs.ListOptions{Creator: alice.Identity.Id.String()})
	require.NoError(t, err)
	assert.Len(t, ls, 4)

	_, err = f.List("docs", fs.ListOptions{OrderBy: "length(name)"})
	assert.True(t, core.IsQuery(err), "expected query error, got %v", err)
}

func TestListFolders(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	for _, p := range []string{"docs/sub1/a", "docs/sub1/b", "docs/sub2/c", "docs/plain"} {
		_, err := f.PutData(p, []byte("x"), "", fs.PutOptions{})
		require.NoError(t, err)
	}

	ls, err := f.List("docs", fs.ListOptions{OnlyFolder: true})
	require.NoError(t, err)
	require.Len(t, ls, 2)
	assert.Equal(t, "sub1", ls[0].Name)
	assert.Equal(t, "sub2", ls[1].Name)
	assert.True(t, ls[0].IsDir)
}

func TestRename(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.PutData("old/name", []byte("payload"), "", fs.PutOptions{})
	require.NoError(t, err)
	_, err = f.PutData("taken", []byte("other"), "", fs.PutOptions{})
	require.NoError(t, err)

	_, err = f.Rename("old/name", "taken")
	assert.True(t, core.IsConflict(err), "expected conflict, got %v", err)

	moved, err := f.Rename("old/name", "new/name")
	require.NoError(t, err)
	assert.Equal(t, "new", moved.Dir)

	_, err = f.Stat("old/name")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)

	data, err := f.GetData("new/name")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = f.Rename("never/existed", "anywhere")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestDelete(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.PutData("victim", []byte("bye"), "", fs.PutOptions{})
	require.NoError(t, err)

	require.NoError(t, f.Delete("victim"))

	_, err = f.Stat("victim")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
	err = f.Delete("victim")
	assert.True(t, core.IsNotFound(err), "expected not found, got %v", err)
}

func TestGetFile(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("from disk"), 0o644))

	_, err := f.PutFile("disk/copy", src, "", fs.PutOptions{})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "dest.txt")
	entry, err := f.GetFile("disk/copy", dest, fs.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, dest, entry.LocalCopy)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("from disk"), data)

	// the cached copy is recorded in the index
	cached, err := f.Stat("disk/copy")
	require.NoError(t, err)
	assert.Equal(t, dest, cached.LocalCopy)
	assert.False(t, cached.CopyTime.IsZero())
}

func TestAsyncPut(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	entry, err := f.PutData("async/data", []byte("deferred"), "", fs.PutOptions{Async: true})
	require.NoError(t, err)

	// the entry is visible locally right away
	got, err := f.Stat("async/data")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	// the content lands once the background worker catches up
	require.Eventually(t, func() bool {
		data, err := f.GetData("async/data")
		return err == nil && string(data) == "deferred"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAsyncPutFileDeletesSource(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	src := filepath.Join(t.TempDir(), "upload.bin")
	require.NoError(t, os.WriteFile(src, []byte("staged content"), 0o644))

	entry, err := f.PutFile("async/file", src, "", fs.PutOptions{Async: true, DeleteSrc: true})
	require.NoError(t, err)
	assert.Equal(t, src, entry.LocalCopy)

	require.Eventually(t, func() bool {
		_, err := os.Stat(src)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)

	data, err := f.GetData("async/file")
	require.NoError(t, err)
	assert.Equal(t, []byte("staged content"), data)
}

func TestAsyncGetFile(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	_, err := f.PutData("report", []byte("download me"), "", fs.PutOptions{})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "report.txt")
	_, err = f.GetFile("report", dest, fs.GetOptions{Async: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(dest)
		return err == nil && string(data) == "download me"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOldEpochStaysReadable(t *testing.T) {
	alice, _ := testutil.NewMemVault(t, vault.Config{})
	f := openFS(t, alice)

	entry, err := f.PutData("pre", []byte("old epoch"), "", fs.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Epoch)

	// a revoke rotates the group key, existing entries keep their epoch
	bob := testutil.NewIdentity(t, "bob")
	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Grant, bob.Id)
	require.NoError(t, err)
	_, err = alice.Vault.UpdateGroup(vault.UserGroup, vault.Revoke, bob.Id)
	require.NoError(t, err)

	post, err := f.PutData("post", []byte("new epoch"), "", fs.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, post.Epoch)

	data, err := f.GetData("pre")
	require.NoError(t, err)
	assert.Equal(t, []byte("old epoch"), data)
}
