package core

import (
	"fmt"
	"strconv"

	"github.com/godruoyi/go-snowflake"
)

// SnowID returns a new snowflake id. Ids are monotonic per process and
// roughly time-ordered across processes, which the object store and the
// messaging channel rely on for pagination and replay cursors.
func SnowID() uint64 {
	return snowflake.ID()
}

// FormatID renders an id as fixed-width hex. The fixed width keeps
// lexicographic order equal to numeric order, so store listings sorted
// by name are also sorted by id.
func FormatID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func ParseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
