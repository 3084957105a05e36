package sqlx

import (
	"database/sql"

	"github.com/stregato/owndata/internal/core"
)

// Rows is a forward-only cursor over a query result. It must be closed
// on all exit paths; Close is idempotent.
type Rows struct {
	*sql.Rows
}

// Exec runs a named statement.
func (db *DB) Exec(name string, args Args) (sql.Result, error) {
	q, err := db.Lookup(name)
	if err != nil {
		return nil, err
	}
	res, err := db.conn.Exec(q, args.Named()...)
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "exec %s failed: %v", name, err)
	}
	return res, nil
}

// Query runs a named query and returns its cursor.
func (db *DB) Query(name string, args Args) (*Rows, error) {
	q, err := db.Lookup(name)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(q, args.Named()...)
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "query %s failed: %v", name, err)
	}
	return &Rows{rows}, nil
}

// QueryRow runs a named query expected to return at most one row and
// scans it into dest. Returns ErrNoRows when the result is empty.
func (db *DB) QueryRow(name string, args Args, dest ...any) error {
	q, err := db.Lookup(name)
	if err != nil {
		return err
	}
	err = db.conn.QueryRow(q, args.Named()...).Scan(dest...)
	if err == sql.ErrNoRows {
		return ErrNoRows
	}
	if err != nil {
		return core.Errf(core.CodeQuery, "query %s failed: %v", name, err)
	}
	return nil
}
