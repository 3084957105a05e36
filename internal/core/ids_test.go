package core

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatID_FixedWidth(t *testing.T) {
	assert.Len(t, FormatID(1), 16)
	assert.Len(t, FormatID(SnowID()), 16)
	assert.Equal(t, "0000000000000001", FormatID(1))
}

func TestFormatID_LexicalOrderMatchesNumeric(t *testing.T) {
	ids := []uint64{1, 42, 1 << 20, 1 << 40, 1<<63 - 1}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = FormatID(id)
	}
	assert.True(t, sort.StringsAreSorted(names))
}

func TestParseID_RoundTrip(t *testing.T) {
	id := SnowID()
	parsed, err := ParseID(FormatID(id))
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("not-hex")
	assert.Error(t, err)
}

func TestSnowID_Monotonic(t *testing.T) {
	prev := SnowID()
	for i := 0; i < 100; i++ {
		next := SnowID()
		assert.Greater(t, next, prev)
		prev = next
	}
}
