package fs

import (
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/sqlx"
)

// Delete removes the entry at p, its header and its content. Deleting
// a missing entry yields NotFound.
func (fs *FileSystem) Delete(p string) error {
	f, err := fs.Stat(p)
	if err != nil {
		return err
	}

	if err := fs.V.Store.Delete(fs.ctx(), headerName(f.Dir, f.ID)); err != nil && !core.IsNotFound(err) {
		return err
	}
	if err := fs.V.Store.Delete(fs.ctx(), bodyName(f.ID)); err != nil && !core.IsNotFound(err) {
		return err
	}
	if err := fs.V.Touch(headerDir(f.Dir)); err != nil {
		logf.Warnw("touch after delete failed", "path", p, "err", err)
	}

	if _, err := fs.V.DB.Exec("DEL_FILE_BY_ID", sqlx.Args{"vault": fs.V.ID, "id": f.ID.String()}); err != nil {
		return err
	}
	logf.Debugw("delete", "path", p, "id", f.ID)
	return nil
}
