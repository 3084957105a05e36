package config

import (
	"encoding/json"

	"github.com/stregato/owndata/internal/sqlx"
)

// Well-known config nodes in the catalog. Each node is an independent
// key/value namespace.
const (
	NodeSettings   = "settings"
	NodeGuard      = "guard"
	NodeGroupChain = "groupChain"
	NodeKeystore   = "keystore"
	NodeComm       = "comm"
)

// SetValue stores a (string, int, blob) triple under node/key.
func SetValue(db *sqlx.DB, node, key, s string, i int64, b []byte) error {
	_, err := db.Exec("SET_CONFIG", sqlx.Args{"node": node, "k": key, "s": s, "i": i, "b": b})
	return err
}

// GetValue reads back a triple. ok is false when the key is absent.
func GetValue(db *sqlx.DB, node, key string) (s string, i int64, b []byte, ok bool) {
	err := db.QueryRow("GET_CONFIG", sqlx.Args{"node": node, "k": key}, &s, &i, &b)
	return s, i, b, err == nil
}

// DelValue removes a key; absent keys are a no-op.
func DelValue(db *sqlx.DB, node, key string) error {
	_, err := db.Exec("DEL_CONFIG", sqlx.Args{"node": node, "k": key})
	return err
}

// SetStruct stores v JSON-encoded in the blob column.
func SetStruct(db *sqlx.DB, node, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return SetValue(db, node, key, "", 0, data)
}

// GetStruct decodes the blob stored under node/key into v. Returns
// sqlx.ErrNoRows when the key is absent.
func GetStruct(db *sqlx.DB, node, key string, v any) error {
	var s string
	var i int64
	var b []byte
	err := db.QueryRow("GET_CONFIG", sqlx.Args{"node": node, "k": key}, &s, &i, &b)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
