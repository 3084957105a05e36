package fs

import (
	"os"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

// GetOptions tune a single get.
type GetOptions struct {
	Async bool // download and decrypt in background (GetFile only)
}

// GetData fetches and decrypts the entry at src. A reader without the
// epoch key of the entry gets an InsufficientKeys or Authorization
// error rather than ciphertext.
func (fs *FileSystem) GetData(src string) ([]byte, error) {
	f, err := fs.Stat(src)
	if err != nil {
		return nil, err
	}
	return fs.fetch(f)
}

// GetFile fetches the entry at src and writes the plaintext to dest on
// the local disk. With Async the transfer runs in background and the
// returned File reflects the entry before the copy lands.
func (fs *FileSystem) GetFile(src, dest string, opts GetOptions) (File, error) {
	f, err := fs.Stat(src)
	if err != nil {
		return File{}, err
	}

	if opts.Async {
		err = fs.jobs.enqueue(job{
			Kind:     jobDownload,
			FileID:   uint64(f.ID),
			Dir:      f.Dir,
			Group:    f.GroupName.String(),
			Epoch:    f.Epoch,
			BodyName: bodyName(f.ID),
			Dest:     dest,
		})
		return f, err
	}

	data, err := fs.fetch(f)
	if err != nil {
		return File{}, err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return File{}, err
	}
	f.LocalCopy = dest
	f.CopyTime = core.Now()
	err = fs.setLocalCopy(f.ID, dest, f.CopyTime.UnixMilli())
	return f, err
}

// fetch downloads and opens the content of an entry.
func (fs *FileSystem) fetch(f File) ([]byte, error) {
	body, err := storage.ReadFile(fs.ctx(), fs.V.Store, bodyName(f.ID))
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.Errf(core.CodeNotFound, "content of %s is not uploaded yet", f.Path())
		}
		return nil, err
	}
	key, err := fs.V.KeyForEpoch(f.GroupName, f.Epoch)
	if err != nil {
		return nil, err
	}
	data, err := security.Open(body, key)
	if err != nil {
		return nil, err
	}
	logf.Debugw("get", "path", f.Path(), "id", f.ID, "size", len(data))
	return data, nil
}

func (fs *FileSystem) setLocalCopy(id FileID, localCopy string, copyTime int64) error {
	_, err := fs.V.DB.Exec("SET_FILE_COPY", sqlx.Args{
		"vault": fs.V.ID, "id": id.String(), "localCopy": localCopy, "copyTime": copyTime,
	})
	return err
}
