package core

import (
	"strings"
	"time"
)

// Now returns the current UTC time truncated to milliseconds, the
// resolution stored in file headers and message records.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// SplitPath splits a /-delimited virtual path into its directory and
// name components. Leading and trailing slashes are ignored.
func SplitPath(p string) (dir, name string) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

func Keys[K comparable, V any](m map[K]V) []K {
	ks := make([]K, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
