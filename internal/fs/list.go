package fs

import (
	"fmt"
	"strings"
	"time"

	"github.com/stregato/owndata/internal/core"
)

// ListOptions narrow and order a directory listing.
type ListOptions struct {
	After      time.Time // entries modified strictly after
	Before     time.Time // entries modified strictly before
	Prefix     string    // name prefix
	Suffix     string    // name suffix
	Tag        string    // entries carrying this tag
	Creator    string    // entries created by this identity
	OrderBy    string    // name, modTime, size or id; name when empty
	Reverse    bool      // descending order
	Limit      int       // page size, 0 for all
	Offset     int       // rows to skip
	NoSync     bool      // skip the remote header import
	OnlyFolder bool      // list subdirectory names instead of entries
}

var orderColumns = map[string]string{
	"":        "name",
	"name":    "name",
	"modTime": "modTime",
	"size":    "size",
	"id":      "id",
}

// List returns the entries of dir. Default order is by name ascending
// with id as tie-break, so paging is stable across calls.
func (fs *FileSystem) List(dir string, opts ListOptions) ([]File, error) {
	dir = normPath(dir)
	if !opts.NoSync {
		if err := fs.syncDir(dir); err != nil {
			return nil, err
		}
	}
	if opts.OnlyFolder {
		return fs.listFolders(dir, opts)
	}

	column, ok := orderColumns[opts.OrderBy]
	if !ok {
		return nil, core.Errf(core.CodeQuery, "invalid order column %s", opts.OrderBy)
	}
	direction := "ASC"
	if opts.Reverse {
		direction = "DESC"
	}

	var where []string
	var args []any
	where = append(where, "vault = ?", "dir = ?")
	args = append(args, fs.V.ID, dir)
	if !opts.After.IsZero() {
		where = append(where, "modTime > ?")
		args = append(args, opts.After.UnixMilli())
	}
	if !opts.Before.IsZero() {
		where = append(where, "modTime < ?")
		args = append(args, opts.Before.UnixMilli())
	}
	if opts.Prefix != "" {
		where = append(where, "name LIKE ? ESCAPE '\\'")
		args = append(args, likePattern(opts.Prefix)+"%")
	}
	if opts.Suffix != "" {
		where = append(where, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+likePattern(opts.Suffix))
	}
	if opts.Tag != "" {
		where = append(where, "tags LIKE ? ESCAPE '\\'")
		args = append(args, "% "+likePattern(opts.Tag)+" %")
	}
	if opts.Creator != "" {
		where = append(where, "creator = ?")
		args = append(args, opts.Creator)
	}

	q := fmt.Sprintf(
		"SELECT id, dir, name, groupName, creator, size, modTime, tags, attributes, localCopy, copyTime, epoch "+
			"FROM files WHERE %s ORDER BY %s %s, id %s",
		strings.Join(where, " AND "), column, direction, direction)
	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 {
		q += " LIMIT -1"
	}
	if opts.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := fs.V.DB.Conn().Query(q, args...)
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "list %s failed: %v", dir, err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// listFolders derives the immediate subdirectories of dir from the
// indexed paths below it.
func (fs *FileSystem) listFolders(dir string, opts ListOptions) ([]File, error) {
	prefix := dir
	if prefix != "" {
		prefix += "/"
	}
	q := "SELECT DISTINCT dir FROM files WHERE vault = ? AND dir LIKE ? ESCAPE '\\'"
	rows, err := fs.V.DB.Conn().Query(q, fs.V.ID, likePattern(prefix)+"%")
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "list folders of %s failed: %v", dir, err)
	}
	defer rows.Close()

	seen := core.Set[string]{}
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, err
		}
		sub = strings.TrimPrefix(sub, prefix)
		if first, _, found := strings.Cut(sub, "/"); found {
			seen.Add(first)
		} else if sub != "" {
			seen.Add(sub)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var folders []File
	for _, name := range core.SortedStrings(seen) {
		folders = append(folders, File{Dir: dir, Name: name, IsDir: true})
	}
	return folders, nil
}

// likePattern escapes the LIKE metacharacters of a literal fragment.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
