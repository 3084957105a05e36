package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stregato/owndata/internal/core"
)

type memObject struct {
	data    []byte
	modTime time.Time
}

// Memory is an in-process store keyed by URL. Opening the same mem://
// URL twice returns the same instance, so independent sessions in the
// same process (typically tests with two identities) share state the
// way they would over a real remote store.
type Memory struct {
	url  string
	mu   sync.RWMutex
	data map[string]memObject
}

var (
	memMu     sync.Mutex
	memStores = map[string]*Memory{}
)

func OpenMemory(connectionURL string) (Store, error) {
	u, err := url.Parse(connectionURL)
	if err != nil || u.Scheme != "mem" {
		return nil, core.Errf(core.CodeNotFound, "invalid memory store url %s", connectionURL)
	}

	memMu.Lock()
	defer memMu.Unlock()
	if m, ok := memStores[connectionURL]; ok {
		return m, nil
	}
	m := &Memory{url: connectionURL, data: map[string]memObject{}}
	memStores[connectionURL] = m
	return m, nil
}

func (m *Memory) ReadDir(_ context.Context, name string, filter Filter) ([]FileInfo, error) {
	name = strings.Trim(name, "/")
	prefix := name
	if prefix != "" {
		prefix += "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]FileInfo{}
	for key, obj := range m.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if idx := strings.Index(rest, "/"); idx >= 0 {
			dir := rest[:idx]
			if _, ok := seen[dir]; !ok {
				seen[dir] = FileInfo{Name: dir, IsDir: true, ModTime: obj.modTime}
			}
			continue
		}
		seen[rest] = FileInfo{Name: rest, Size: int64(len(obj.data)), ModTime: obj.modTime}
	}

	var ls []FileInfo
	for _, fi := range seen {
		if filter.Match(fi) {
			ls = append(ls, fi)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Name < ls[j].Name })
	if filter.MaxResults > 0 && int64(len(ls)) > filter.MaxResults {
		ls = ls[:filter.MaxResults]
	}
	return ls, nil
}

func (m *Memory) Read(_ context.Context, name string, dest io.Writer) error {
	m.mu.RLock()
	obj, ok := m.data[strings.Trim(name, "/")]
	m.mu.RUnlock()
	if !ok {
		return core.Errf(core.CodeNotFound, "object %s not found in %s", name, m.url)
	}
	_, err := io.Copy(dest, bytes.NewReader(obj.data))
	return err
}

func (m *Memory) Write(_ context.Context, name string, source io.Reader) error {
	data, err := io.ReadAll(source)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[strings.Trim(name, "/")] = memObject{data: data, modTime: core.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stat(_ context.Context, name string) (FileInfo, error) {
	m.mu.RLock()
	obj, ok := m.data[strings.Trim(name, "/")]
	m.mu.RUnlock()
	if !ok {
		return FileInfo{}, core.Errf(core.CodeNotFound, "object %s not found in %s", name, m.url)
	}
	return FileInfo{Name: path.Base(name), Size: int64(len(obj.data)), ModTime: obj.modTime}, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	key := strings.Trim(name, "/")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return core.Errf(core.CodeNotFound, "object %s not found in %s", name, m.url)
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) ID() string   { return m.url }
func (m *Memory) Close() error { return nil }
