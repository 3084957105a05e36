package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"path"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

var logf = core.Log("fs")

// Store layout of the object-store subsystem.
const (
	fsDir      = "fs"
	headersDir = "fs/headers"
	dataDir    = "fs/data"
)

// FileID identifies an entry. Ids are monotonic snowflakes assigned at
// creation.
type FileID uint64

func (id FileID) String() string { return core.FormatID(uint64(id)) }

// File is the metadata of one entry in the encrypted namespace.
// Content is encrypted under the group epoch referenced by Epoch at
// write time; re-keying never retroactively re-encrypts entries.
// LocalCopy points to a cached plaintext copy while an asynchronous
// put or get is pending; it is cleared once the remote half completes.
type File struct {
	ID         FileID           `json:"id" msgpack:"i"`
	Dir        string           `json:"dir" msgpack:"d"`
	Name       string           `json:"name" msgpack:"n"`
	IsDir      bool             `json:"isDir,omitempty" msgpack:"f"`
	GroupName  vault.GroupName  `json:"groupName" msgpack:"g"`
	Creator    security.ID      `json:"creator" msgpack:"c"`
	Size       int64            `json:"size" msgpack:"z"`
	ModTime    time.Time        `json:"modTime" msgpack:"m"`
	Tags       core.Set[string] `json:"tags,omitempty" msgpack:"t"`
	Attributes map[string]any   `json:"attributes,omitempty" msgpack:"a"`
	LocalCopy  string           `json:"localCopy,omitempty" msgpack:"l"`
	CopyTime   time.Time        `json:"copyTime,omitempty" msgpack:"y"`
	Epoch      int              `json:"encryptionKeyRef" msgpack:"e"`
}

// Path returns the virtual path of the entry.
func (f File) Path() string {
	return path.Join(f.Dir, f.Name)
}

// fileWrap is the on-store envelope of an encrypted header: the group
// and epoch stay in clear so a reader can resolve the right key.
type fileWrap struct {
	Group vault.GroupName `msgpack:"g"`
	Epoch int             `msgpack:"e"`
	Data  []byte          `msgpack:"d"`
}

// FileSystem is an object-store session on one vault.
type FileSystem struct {
	V *vault.Vault

	jobs *asyncQueue
}

// Open starts an object-store session. The session owns a background
// worker that completes asynchronous puts and gets; Close stops it.
func Open(v *vault.Vault) (*FileSystem, error) {
	fs := &FileSystem{V: v}
	jobs, err := openAsyncQueue(fs)
	if err != nil {
		return nil, err
	}
	fs.jobs = jobs
	return fs, nil
}

// Close stops the background worker. Pending jobs stay staged and are
// resumed by the next session on the same catalog.
func (fs *FileSystem) Close() error {
	return fs.jobs.close()
}

func (fs *FileSystem) ctx() context.Context {
	return context.Background()
}

// normPath canonicalizes a virtual path: NFC-normalized, /-delimited,
// no leading or trailing slashes. Keeping the bytes canonical makes
// the (dir, name) unique key stable across platforms.
func normPath(p string) string {
	p = norm.NFC.String(p)
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}

// hashDir buckets header objects by directory. FNV-1a disperses small
// path differences well enough for this purpose.
func hashDir(dir string) string {
	h := fnv.New64a()
	h.Write([]byte(dir))
	return fmt.Sprintf("%016x", h.Sum64())
}

func headerDir(dir string) string {
	return path.Join(headersDir, hashDir(dir))
}

func headerName(dir string, id FileID) string {
	return path.Join(headerDir(dir), id.String())
}

func bodyName(id FileID) string {
	return path.Join(dataDir, id.String())
}

// sealHeader seals the entry metadata under the given epoch key and
// wraps it with the group and epoch in clear, so a reader can resolve
// the right key before opening.
func (fs *FileSystem) sealHeader(f File, key vault.Key, epoch int) ([]byte, error) {
	// Local-only fields stay out of the shared header.
	f.LocalCopy = ""
	f.CopyTime = time.Time{}

	data, err := msgpack.Marshal(f)
	if err != nil {
		return nil, err
	}
	sealed, err := security.Seal(data, key)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(fileWrap{Group: f.GroupName, Epoch: epoch, Data: sealed})
}

// writeHeader stores the sealed metadata next to the other headers of
// its directory.
func (fs *FileSystem) writeHeader(f File, key vault.Key, epoch int) error {
	wrap, err := fs.sealHeader(f, key, epoch)
	if err != nil {
		return err
	}
	return storage.WriteFile(fs.ctx(), fs.V.Store, headerName(f.Dir, f.ID), wrap)
}

// readHeader fetches and opens one header object.
func (fs *FileSystem) readHeader(dir, name string) (File, error) {
	var wrap fileWrap
	if err := storage.ReadMsgPack(fs.ctx(), fs.V.Store, path.Join(headersDir, hashDir(dir), name), &wrap); err != nil {
		return File{}, err
	}

	key, err := fs.V.KeyForEpoch(wrap.Group, wrap.Epoch)
	if err != nil {
		return File{}, err
	}
	data, err := security.Open(wrap.Data, key)
	if err != nil {
		return File{}, err
	}

	var f File
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return File{}, core.Errf(core.CodeCrypto, "corrupted header %s/%s: %v", dir, name, err)
	}
	return f, nil
}

// syncDir imports headers written by other sessions into the local
// index. Ids are monotonic, so only names above the highest indexed id
// of the directory need reading.
func (fs *FileSystem) syncDir(dir string) error {
	dirKey := path.Join(headersDir, hashDir(dir))
	if !fs.V.IsUpdated(dirKey) {
		return nil
	}

	var lastID string
	if err := fs.V.DB.QueryRow("GET_LAST_FILE_ID", sqlx.Args{"vault": fs.V.ID, "dir": dir}, &lastID); err != nil && err != sqlx.ErrNoRows {
		return err
	}

	ls, err := fs.V.Store.ReadDir(fs.ctx(), dirKey, storage.Filter{AfterName: lastID, OnlyFiles: true})
	if core.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, l := range ls {
		if l.Name == ".touch" {
			continue
		}
		f, err := fs.readHeader(dir, l.Name)
		if err != nil {
			logf.Warnw("skipping unreadable header", "dir", dir, "name", l.Name, "err", err)
			continue
		}
		if err := fs.indexFile(f); err != nil {
			return err
		}
	}
	fs.V.Observe(dirKey)
	return nil
}

// indexFile upserts an entry into the local index. The (dir, name) key
// wins over the id key: a newer entry on the same path replaces the
// older row entirely.
func (fs *FileSystem) indexFile(f File) error {
	attrs, err := json.Marshal(f.Attributes)
	if err != nil {
		return err
	}
	if _, err := fs.V.DB.Exec("DEL_FILE_BY_PATH", sqlx.Args{"vault": fs.V.ID, "dir": f.Dir, "name": f.Name}); err != nil {
		return err
	}
	_, err = fs.V.DB.Exec("INSERT_FILE", sqlx.Args{
		"vault":      fs.V.ID,
		"id":         f.ID.String(),
		"dir":        f.Dir,
		"name":       f.Name,
		"groupName":  f.GroupName.String(),
		"creator":    f.Creator.String(),
		"size":       f.Size,
		"modTime":    f.ModTime.UnixMilli(),
		"tags":       encodeTags(f.Tags),
		"attributes": string(attrs),
		"localCopy":  f.LocalCopy,
		"copyTime":   f.CopyTime.UnixMilli(),
		"epoch":      f.Epoch,
	})
	return err
}

// encodeTags flattens a tag set to a space-delimited form that supports
// LIKE matching on whole tags.
func encodeTags(tags core.Set[string]) string {
	if len(tags) == 0 {
		return " "
	}
	return " " + strings.Join(core.SortedStrings(tags), " ") + " "
}

func decodeTags(s string) core.Set[string] {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return core.NewSet(strings.Split(s, " ")...)
}

// scanFile reads one index row into a File.
func scanFile(scan func(...any) error) (File, error) {
	var f File
	var id, tags, attrs string
	var modTime, copyTime int64
	err := scan(&id, &f.Dir, &f.Name, (*string)(&f.GroupName), (*string)(&f.Creator),
		&f.Size, &modTime, &tags, &attrs, &f.LocalCopy, &copyTime, &f.Epoch)
	if err != nil {
		return File{}, err
	}
	n, err := core.ParseID(id)
	if err != nil {
		return File{}, err
	}
	f.ID = FileID(n)
	f.ModTime = time.UnixMilli(modTime).UTC()
	if copyTime > 0 {
		f.CopyTime = time.UnixMilli(copyTime).UTC()
	}
	f.Tags = decodeTags(tags)
	if attrs != "" && attrs != "{}" && attrs != "null" {
		if err := json.Unmarshal([]byte(attrs), &f.Attributes); err != nil {
			return File{}, err
		}
	}
	return f, nil
}
