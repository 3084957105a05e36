package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stregato/owndata/internal/core"
)

// Local is a store rooted at a local folder, addressed as
// file:///absolute/path.
type Local struct {
	url  string
	root string
}

func OpenLocal(connectionURL string) (Store, error) {
	u, err := url.Parse(connectionURL)
	if err != nil || u.Scheme != "file" {
		return nil, core.Errf(core.CodeNotFound, "invalid local store url %s", connectionURL)
	}
	root := u.Path
	if root == "" {
		return nil, core.Errf(core.CodeNotFound, "missing path in local store url %s", connectionURL)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Local{url: connectionURL, root: root}, nil
}

func (l *Local) abs(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(strings.Trim(name, "/")))
}

func (l *Local) ReadDir(_ context.Context, name string, filter Filter) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.abs(name))
	if os.IsNotExist(err) {
		return nil, core.Errf(core.CodeNotFound, "folder %s not found in %s", name, l.url)
	}
	if err != nil {
		return nil, err
	}

	var ls []FileInfo
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		fi := FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime(), IsDir: e.IsDir()}
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

func (l *Local) Read(_ context.Context, name string, dest io.Writer) error {
	f, err := os.Open(l.abs(name))
	if os.IsNotExist(err) {
		return core.Errf(core.CodeNotFound, "object %s not found in %s", name, l.url)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dest, f)
	return err
}

func (l *Local) Write(_ context.Context, name string, source io.Reader) error {
	dest := l.abs(name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, source); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// rename keeps readers from observing a half-written object
	return os.Rename(tmp, dest)
}

func (l *Local) Stat(_ context.Context, name string) (FileInfo, error) {
	info, err := os.Stat(l.abs(name))
	if os.IsNotExist(err) {
		return FileInfo{}, core.Errf(core.CodeNotFound, "object %s not found in %s", name, l.url)
	}
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: info.Name(), Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	err := os.Remove(l.abs(name))
	if os.IsNotExist(err) {
		return core.Errf(core.CodeNotFound, "object %s not found in %s", name, l.url)
	}
	return err
}

func (l *Local) ID() string   { return l.url }
func (l *Local) Close() error { return nil }
