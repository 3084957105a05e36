// Package db exposes a transactional, group-replicated structured
// store on top of a vault. Statements execute against the local sqlite
// catalog and, on commit, the transaction log is encrypted under the
// group's active epoch and pushed to the backing store, where other
// members replay it into their own catalogs.
package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/vault"
)

var logd = core.Log("db")

const txDir = "db"

// DDL pairs a schema version with its statements, in the same
// sectioned format the catalog uses: schema first, named queries after
// "-- QUERY <NAME>" markers.
type DDL map[float32]string

// Database is a structured-store session bound to one group: every
// transaction it commits is readable exactly by that group's members.
type Database struct {
	V         *vault.Vault
	GroupName vault.GroupName
}

// Open starts a structured-store session. The caller must be a member
// of groupName. The DDLs are applied to the local catalog in version
// order; already-applied versions are skipped.
func Open(v *vault.Vault, groupName vault.GroupName, ddls DDL) (*Database, error) {
	groups, err := v.GetGroups()
	if err != nil {
		return nil, err
	}
	if !groups[groupName].Contains(v.Identity.Id) {
		return nil, core.Errf(core.CodeAuthorization, "%s is not a member of group %s",
			v.Identity.Id.Nick(), groupName)
	}

	versions := core.Keys(ddls)
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for _, version := range versions {
		if err := v.DB.Define(version, ddls[version]); err != nil {
			return nil, err
		}
	}
	d := &Database{V: v, GroupName: groupName}
	if err := d.Sync(); err != nil {
		logd.Warnw("initial sync failed, continuing with local state", "group", groupName, "err", err)
	}
	return d, nil
}

// Exec runs a single named update as its own transaction: it is staged,
// committed and replicated in one call.
func (d *Database) Exec(query string, args sqlx.Args) (sql.Result, error) {
	tx, err := d.Transaction()
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(query, args)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// Query runs a named read-only query and returns a cursor over its
// rows. Reads see local state only; call Sync first to pull remote
// transactions.
func (d *Database) Query(query string, args sqlx.Args) (*Rows, error) {
	q, err := d.lookup(query)
	if err != nil {
		return nil, err
	}
	rows, err := d.V.DB.Conn().Query(q, args.Named()...)
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "query %s failed: %v", query, err)
	}
	return &Rows{rows: rows}, nil
}

// QueryRow runs a named query expected to return at most one row.
func (d *Database) QueryRow(query string, args sqlx.Args, dest ...any) error {
	return d.V.DB.QueryRow(query, args, dest...)
}

// lookup resolves a named query, or accepts a raw SELECT for ad-hoc
// reads. Updates must go through transactions.
func (d *Database) lookup(query string) (string, error) {
	q, err := d.V.DB.Lookup(query)
	if err == nil {
		return q, nil
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return query, nil
	}
	return "", err
}

func (d *Database) ctx() context.Context {
	return context.Background()
}

// Rows is a forward-only cursor. Close is idempotent.
type Rows struct {
	rows   *sql.Rows
	closed bool
}

// Next advances the cursor and reports whether a row is available.
func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	return r.rows.Next()
}

// Scan copies the current row into dest.
func (r *Rows) Scan(dest ...any) error {
	if r.closed {
		return core.Errf(core.CodeQuery, "cursor is closed")
	}
	return r.rows.Scan(dest...)
}

// NextRow returns the current row as a column-name map, or ok=false
// when the cursor is exhausted.
func (r *Rows) NextRow() (row map[string]any, ok bool, err error) {
	if !r.Next() {
		return nil, false, r.rows.Err()
	}
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, false, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, false, err
	}
	row = make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	return row, true, nil
}

// Close releases the cursor. Closing twice is a no-op.
func (r *Rows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rows.Close()
}
