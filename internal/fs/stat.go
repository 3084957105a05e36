package fs

import (
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/sqlx"
)

// Stat returns the metadata of the entry at p, importing headers
// written by other sessions first. Missing entries yield NotFound.
func (fs *FileSystem) Stat(p string) (File, error) {
	p = normPath(p)
	dir, name := core.SplitPath(p)
	if err := fs.syncDir(dir); err != nil {
		return File{}, err
	}

	rows, err := fs.V.DB.Query("GET_FILE_BY_PATH", sqlx.Args{"vault": fs.V.ID, "dir": dir, "name": name})
	if err != nil {
		return File{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return File{}, core.Errf(core.CodeNotFound, "no entry at %s", p)
	}
	return scanFile(rows.Scan)
}
