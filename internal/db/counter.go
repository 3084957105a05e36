package db

import (
	"github.com/stregato/owndata/internal/sqlx"
)

// IncCounter stages an increment of the named counter. Increments are
// append-only rows, so concurrent increments from different members
// merge by addition instead of conflicting.
func (t *Transaction) IncCounter(name, key string, delta int64) error {
	_, err := t.Exec("INC_COUNTER", sqlx.Args{
		"vault": t.d.V.ID, "name": name, "key": key, "value": delta})
	return err
}

// GetCounter returns the current value of a counter: the sum of all
// increments applied so far. An unknown counter reads as zero.
func (d *Database) GetCounter(name, key string) (int64, error) {
	var value int64
	err := d.V.DB.QueryRow("GET_COUNTER",
		sqlx.Args{"vault": d.V.ID, "name": name, "key": key}, &value)
	if err == sqlx.ErrNoRows {
		return 0, nil
	}
	return value, err
}
