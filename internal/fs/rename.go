package fs

import (
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/sqlx"
)

// Rename moves the entry at old to new. The destination must be free,
// otherwise the call fails with Conflict and nothing changes. The
// content object stays in place; only the header moves.
func (fs *FileSystem) Rename(old, new string) (File, error) {
	f, err := fs.Stat(old)
	if err != nil {
		return File{}, err
	}
	if _, err := fs.Stat(new); err == nil {
		return File{}, core.Errf(core.CodeConflict, "destination %s already exists", new)
	} else if !core.IsNotFound(err) {
		return File{}, err
	}

	oldDir, oldName := f.Dir, f.Name
	newDir, newName := core.SplitPath(normPath(new))
	f.Dir, f.Name = newDir, newName
	f.ModTime = core.Now()

	fs.V.RLock()
	key, epoch, err := fs.V.ActiveKey(f.GroupName)
	if err != nil {
		fs.V.RUnlock()
		return File{}, err
	}
	err = fs.writeHeader(f, key, epoch)
	fs.V.RUnlock()
	if err != nil {
		return File{}, err
	}
	if err := fs.V.Store.Delete(fs.ctx(), headerName(oldDir, f.ID)); err != nil && !core.IsNotFound(err) {
		logf.Warnw("stale header left behind after rename", "path", old, "err", err)
	}
	for _, d := range []string{headerDir(oldDir), headerDir(newDir)} {
		if err := fs.V.Touch(d); err != nil {
			logf.Warnw("touch after rename failed", "dir", d, "err", err)
		}
	}

	_, err = fs.V.DB.Exec("RENAME_FILE", sqlx.Args{
		"vault": fs.V.ID, "dir": oldDir, "name": oldName,
		"newDir": newDir, "newName": newName, "modTime": f.ModTime.UnixMilli(),
	})
	if err != nil {
		return File{}, err
	}
	logf.Debugw("rename", "from", old, "to", new, "id", f.ID)
	return f, nil
}
