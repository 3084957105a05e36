package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/core"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := Open("mem://" + uuid.NewString())
	require.NoError(t, err)
	local, err := Open("file://" + t.TempDir())
	require.NoError(t, err)
	return map[string]Store{"mem": mem, "local": local}
}

func TestStore_ReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, WriteFile(ctx, s, "dir/a", []byte("alpha")))

			data, err := ReadFile(ctx, s, "dir/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha"), data)

			fi, err := s.Stat(ctx, "dir/a")
			require.NoError(t, err)
			assert.Equal(t, int64(5), fi.Size)

			require.NoError(t, s.Delete(ctx, "dir/a"))
			_, err = ReadFile(ctx, s, "dir/a")
			assert.True(t, core.IsNotFound(err))
			assert.True(t, core.IsNotFound(s.Delete(ctx, "dir/a")))
		})
	}
}

func TestStore_OverwriteReplaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, WriteFile(ctx, s, "x", []byte("first")))
			require.NoError(t, WriteFile(ctx, s, "x", []byte("second")))
			data, err := ReadFile(ctx, s, "x")
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), data)
		})
	}
}

func TestReadDir_SortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"d/c.txt", "d/a.txt", "d/b.bin", "d/sub/deep.txt"} {
				require.NoError(t, WriteFile(ctx, s, n, []byte("x")))
			}

			ls, err := s.ReadDir(ctx, "d", Filter{})
			require.NoError(t, err)
			var names []string
			for _, l := range ls {
				names = append(names, l.Name)
			}
			assert.Equal(t, []string{"a.txt", "b.bin", "c.txt", "sub"}, names)

			ls, err = s.ReadDir(ctx, "d", Filter{Suffix: ".txt", OnlyFiles: true})
			require.NoError(t, err)
			assert.Len(t, ls, 2)

			ls, err = s.ReadDir(ctx, "d", Filter{AfterName: "a.txt", OnlyFiles: true})
			require.NoError(t, err)
			require.NotEmpty(t, ls)
			assert.Equal(t, "b.bin", ls[0].Name)

			ls, err = s.ReadDir(ctx, "d", Filter{MaxResults: 2})
			require.NoError(t, err)
			assert.Len(t, ls, 2)
		})
	}
}

func TestOpenMemory_SharedByURL(t *testing.T) {
	ctx := context.Background()
	url := "mem://" + uuid.NewString()

	s1, err := Open(url)
	require.NoError(t, err)
	s2, err := Open(url)
	require.NoError(t, err)

	require.NoError(t, WriteFile(ctx, s1, "shared", []byte("hi")))
	data, err := ReadFile(ctx, s2, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data)
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open("ftp://example.com/bucket")
	assert.True(t, core.IsNotFound(err))
}
