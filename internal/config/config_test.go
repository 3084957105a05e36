package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stregato/owndata/internal/sqlx"
)

func TestValues_RoundTrip(t *testing.T) {
	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SetValue(db, NodeSettings, "greeting", "hello", 7, []byte{1, 2}))
	s, i, b, ok := GetValue(db, NodeSettings, "greeting")
	require.True(t, ok)
	assert.Equal(t, "hello", s)
	assert.Equal(t, int64(7), i)
	assert.Equal(t, []byte{1, 2}, b)

	_, _, _, ok = GetValue(db, NodeSettings, "missing")
	assert.False(t, ok)

	require.NoError(t, DelValue(db, NodeSettings, "greeting"))
	_, _, _, ok = GetValue(db, NodeSettings, "greeting")
	assert.False(t, ok)
}

func TestStruct_RoundTrip(t *testing.T) {
	db, err := sqlx.Open(sqlx.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	type point struct {
		X, Y int
	}
	require.NoError(t, SetStruct(db, NodeKeystore, "origin", point{3, 4}))

	var p point
	require.NoError(t, GetStruct(db, NodeKeystore, "origin", &p))
	assert.Equal(t, point{3, 4}, p)

	err = GetStruct(db, NodeKeystore, "missing", &p)
	assert.Equal(t, sqlx.ErrNoRows, err)
}

func TestLoadSettings_MissingFileIsZero(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Settings{}, s)
}

func TestLoadSettings_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `nick: alice
log: debug
quota: 1000000
aliases:
  work: mem://work
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Nick)
	assert.Equal(t, "debug", s.Log)
	assert.Equal(t, int64(1000000), s.Quota)
	assert.Equal(t, "mem://work", s.Aliases["work"])
}

func TestLoadSettings_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"colon in nick":  "nick: \"a:b\"\n",
		"bad log level":  "log: loud\n",
		"negative quota": "quota: -1\n",
		"bad alias":      "aliases:\n  work: ftp://host\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := LoadSettings(path)
			assert.Error(t, err)
		})
	}
}
