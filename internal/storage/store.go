package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/stregato/owndata/internal/core"
)

// FileInfo describes one object or folder in a backing store.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Filter narrows ReadDir results. Zero values mean no restriction.
type Filter struct {
	Prefix     string // keep names starting with Prefix
	Suffix     string // keep names ending with Suffix
	AfterName  string // skip names lexicographically <= AfterName
	After      time.Time
	MaxResults int64
	OnlyFiles  bool
}

// Match reports whether the entry passes the filter predicates other
// than MaxResults, which the backends apply while iterating.
func (f Filter) Match(fi FileInfo) bool {
	if f.OnlyFiles && fi.IsDir {
		return false
	}
	if f.Prefix != "" && !strings.HasPrefix(fi.Name, f.Prefix) {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(fi.Name, f.Suffix) {
		return false
	}
	if f.AfterName != "" && fi.Name <= f.AfterName {
		return false
	}
	if !f.After.IsZero() && !fi.ModTime.After(f.After) {
		return false
	}
	return true
}

// Store is the low-level interface to a backing location such as a
// local folder, an in-memory fixture or an S3 bucket. Names are
// /-delimited keys; folders are implicit.
type Store interface {
	// ReadDir lists the direct entries of a folder, sorted by name.
	ReadDir(ctx context.Context, name string, filter Filter) ([]FileInfo, error)

	// Read streams an object into dest. A missing object surfaces as a
	// not-found error.
	Read(ctx context.Context, name string, dest io.Writer) error

	// Write stores an object, overwriting any existing one.
	Write(ctx context.Context, name string, source io.Reader) error

	// Stat describes a single object.
	Stat(ctx context.Context, name string) (FileInfo, error)

	// Delete removes an object. Deleting an absent object is an error.
	Delete(ctx context.Context, name string) error

	// ID identifies the store: the URL stripped of credentials.
	ID() string

	Close() error
}

// Open dispatches on the URL scheme. Supported: file://, mem://, s3://.
func Open(url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "file://"):
		return OpenLocal(url)
	case strings.HasPrefix(url, "mem://"):
		return OpenMemory(url)
	case strings.HasPrefix(url, "s3://"):
		return OpenS3(url)
	}
	return nil, core.Errf(core.CodeNotFound, "unsupported store scheme in %s", url)
}

// ReadFile and WriteFile are whole-object conveniences over Read/Write.
func ReadFile(ctx context.Context, s Store, name string) ([]byte, error) {
	var buf writerBuffer
	if err := s.Read(ctx, name, &buf); err != nil {
		return nil, err
	}
	return buf.data, nil
}

func WriteFile(ctx context.Context, s Store, name string, data []byte) error {
	return s.Write(ctx, name, bytes.NewReader(data))
}

type writerBuffer struct {
	data []byte
}

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
