package sqlx

import (
	"database/sql"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stregato/owndata/internal/core"
)

// ErrNoRows is re-exported so callers do not import database/sql just
// for the sentinel.
var ErrNoRows = sql.ErrNoRows

// MemoryPath opens an in-memory catalog, used by tests.
const MemoryPath = ":memory:"

//go:embed ddl1_0.sql
var ddl1_0 string

// DB is the local catalog: a SQLite database holding per-vault file
// indexes, config values, replay cursors and the structured-store
// tables. Statements are registered as named queries by Define so that
// subsystems execute by key instead of embedding SQL strings.
type DB struct {
	Path string

	conn     *sql.DB
	mu       sync.RWMutex
	queries  map[string]string
	versions map[string]float32
}

// Open creates or opens the catalog at the given path and applies the
// base schema. The database is configured with WAL mode, NORMAL
// synchronous mode, a 5-second busy timeout and foreign keys, and is
// limited to a single writer connection to avoid SQLITE_BUSY errors.
// Safe to call multiple times on the same path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to catalog %s: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{
		Path:     path,
		conn:     conn,
		queries:  map[string]string{},
		versions: map[string]float32{},
	}
	if err := db.Define(1.0, ddl1_0); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Define parses a DDL document and registers its named queries. The
// document is a sequence of sections separated by lines of the form
// "-- QUERY <NAME>"; everything before the first marker is schema DDL
// executed immediately (statements must be idempotent), each following
// section is stored under its name for Exec/Query/QueryRow.
//
// Redefining a name at the same or lower version is a no-op, so callers
// can pass their DDLs on every open.
func (db *DB) Define(version float32, ddl string) error {
	schema, queries := splitDDL(ddl)

	if strings.TrimSpace(schema) != "" {
		if _, err := db.conn.Exec(schema); err != nil {
			return core.Errf(core.CodeQuery, "failed to apply schema: %v", err)
		}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for name, q := range queries {
		if v, ok := db.versions[name]; ok && v >= version {
			continue
		}
		db.queries[name] = q
		db.versions[name] = version
	}
	return nil
}

func splitDDL(ddl string) (schema string, queries map[string]string) {
	queries = map[string]string{}
	var name string
	var buf strings.Builder

	flush := func() {
		if name == "" {
			schema = buf.String()
		} else {
			queries[name] = strings.TrimSpace(buf.String())
		}
		buf.Reset()
	}

	for _, line := range strings.Split(ddl, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-- QUERY ") {
			flush()
			name = strings.TrimSpace(strings.TrimPrefix(trimmed, "-- QUERY "))
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return schema, queries
}

// Version returns the DDL version a named query was registered at.
func (db *DB) Version(name string) float32 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.versions[name]
}

// QueryNames returns the registered query names, sorted.
func (db *DB) QueryNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := core.Keys(db.queries)
	sort.Strings(names)
	return names
}

func (db *DB) Lookup(name string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	q, ok := db.queries[name]
	if !ok {
		return "", core.Errf(core.CodeNotFound, "unknown query %s", name)
	}
	return q, nil
}

// MustLookup resolves a named query that is part of the built-in DDL.
// It panics on a miss, which can only happen on a programming error.
func (db *DB) MustLookup(name string) string {
	q, err := db.Lookup(name)
	if err != nil {
		panic(err)
	}
	return q
}

// Conn exposes the underlying connection for call sites that build SQL
// dynamically (list predicates, structured-store transactions).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Close() error {
	return db.conn.Close()
}
