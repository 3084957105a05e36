package db

import (
	"database/sql"
	"path"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

// txOp is one staged statement. The query is recorded by name when it
// comes from a registered DDL, or as raw SQL otherwise, so members
// replay exactly what the writer executed.
type txOp struct {
	Query string    `msgpack:"q"`
	Args  sqlx.Args `msgpack:"a"`
}

// txRecord is the unit of replication: all statements of one committed
// transaction, applied atomically by every reader.
type txRecord struct {
	ID        uint64 `msgpack:"i"`
	Ops       []txOp `msgpack:"o"`
	Timestamp int64  `msgpack:"t"`
}

// txWrap is the on-store envelope: the record stays sealed under the
// group epoch, the signature covers the sealed bytes.
type txWrap struct {
	Signer    security.ID `msgpack:"s"`
	Epoch     int         `msgpack:"e"`
	Data      []byte      `msgpack:"d"`
	Signature []byte      `msgpack:"g"`
}

// Transaction stages updates until Commit replicates them. A failed
// statement poisons the transaction: further statements are rejected
// and Commit reports the original failure.
type Transaction struct {
	d     *Database
	tx    *sql.Tx
	id    uint64
	key   vault.Key
	epoch int
	ops   []txOp
	err   error
	done  bool
}

// Transaction begins a staged update. The encryption epoch is resolved
// here, before the sqlite transaction pins the catalog's single
// connection: key and chain reads go through that same connection and
// would block forever once it is held.
func (d *Database) Transaction() (*Transaction, error) {
	d.V.RLock()
	key, epoch, err := d.V.ActiveKey(d.GroupName)
	d.V.RUnlock()
	if err != nil {
		return nil, err
	}

	tx, err := d.V.DB.Conn().Begin()
	if err != nil {
		return nil, core.Errf(core.CodeQuery, "cannot begin transaction: %v", err)
	}
	return &Transaction{d: d, tx: tx, id: core.SnowID(), key: key, epoch: epoch}, nil
}

// Exec stages a named update inside the transaction.
func (t *Transaction) Exec(query string, args sqlx.Args) (sql.Result, error) {
	if t.done {
		return nil, core.Errf(core.CodeQuery, "transaction is closed")
	}
	if t.err != nil {
		return nil, t.err
	}

	q, err := t.d.V.DB.Lookup(query)
	if err != nil {
		q = query
	}
	res, err := t.tx.Exec(q, args.Named()...)
	if err != nil {
		t.err = core.Errf(core.CodeQuery, "exec %s failed: %v", query, err)
		return nil, t.err
	}
	t.ops = append(t.ops, txOp{Query: query, Args: args})
	return res, nil
}

// Commit seals the staged statements under the epoch resolved at
// begin, pushes them to the store and commits them locally. On any
// failure the local catalog is left untouched.
func (t *Transaction) Commit() error {
	if t.done {
		return core.Errf(core.CodeQuery, "transaction is closed")
	}
	if t.err != nil {
		t.Rollback()
		return t.err
	}
	t.done = true

	d := t.d
	record, err := msgpack.Marshal(txRecord{ID: t.id, Ops: t.ops, Timestamp: core.Now().UnixMilli()})
	if err != nil {
		t.tx.Rollback()
		return err
	}

	sealed, err := security.Seal(record, t.key)
	if err != nil {
		t.tx.Rollback()
		return err
	}
	signature, err := security.Sign(d.V.Identity, sealed)
	if err != nil {
		t.tx.Rollback()
		return err
	}

	txID := core.FormatID(t.id)
	if _, err := t.tx.Exec(d.V.DB.MustLookup("SET_TX"),
		sqlx.Args{"vault": d.V.ID, "groupName": d.GroupName.String(), "id": txID, "applied": 1}.Named()...); err != nil {
		t.tx.Rollback()
		return core.Errf(core.CodeQuery, "cannot record transaction %s: %v", txID, err)
	}

	wrap := txWrap{Signer: d.V.Identity.Id, Epoch: t.epoch, Data: sealed, Signature: signature}
	if err := storage.WriteMsgPack(d.ctx(), d.V.Store, d.txName(txID), wrap); err != nil {
		t.tx.Rollback()
		return err
	}
	if err := t.tx.Commit(); err != nil {
		return core.Errf(core.CodeQuery, "cannot commit transaction %s: %v", txID, err)
	}
	if err := d.V.Touch(d.txDirName()); err != nil {
		logd.Warnw("touch after commit failed", "group", d.GroupName, "err", err)
	}
	logd.Debugw("committed", "group", d.GroupName, "tx", txID, "ops", len(t.ops))
	return nil
}

// Rollback discards the staged statements. Rolling back twice, or
// after Commit, is a no-op.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (d *Database) txDirName() string {
	return path.Join(txDir, d.GroupName.String())
}

func (d *Database) txName(id string) string {
	return path.Join(txDir, d.GroupName.String(), id)
}

// Sync pulls transactions committed by other members and applies each
// atomically. Already-applied transactions are skipped; records whose
// signature does not verify, or whose signer is not a group member,
// are ignored.
func (d *Database) Sync() error {
	if !d.V.IsUpdated(d.txDirName()) {
		return nil
	}
	groups, err := d.V.GetGroups()
	if err != nil {
		return err
	}

	var lastID string
	if err := d.V.DB.QueryRow("GET_LAST_TX",
		sqlx.Args{"vault": d.V.ID, "groupName": d.GroupName.String()}, &lastID); err != nil && err != sqlx.ErrNoRows {
		return err
	}

	ls, err := d.V.Store.ReadDir(d.ctx(), d.txDirName(), storage.Filter{AfterName: lastID, OnlyFiles: true})
	if core.IsNotFound(err) {
		d.V.Observe(d.txDirName())
		return nil
	}
	if err != nil {
		return err
	}

	for _, l := range ls {
		if l.Name == ".touch" {
			continue
		}
		var count int
		if err := d.V.DB.QueryRow("HAS_TX",
			sqlx.Args{"vault": d.V.ID, "groupName": d.GroupName.String(), "id": l.Name}, &count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := d.apply(l.Name, groups[d.GroupName]); err != nil {
			logd.Warnw("skipping transaction", "group", d.GroupName, "tx", l.Name, "err", err)
		}
	}
	d.V.Observe(d.txDirName())
	return nil
}

// apply replays one remote transaction into the local catalog.
func (d *Database) apply(name string, members core.Set[security.ID]) error {
	var wrap txWrap
	if err := storage.ReadMsgPack(d.ctx(), d.V.Store, d.txName(name), &wrap); err != nil {
		return err
	}
	if !members.Contains(wrap.Signer) {
		return core.Errf(core.CodeAuthorization, "transaction %s signed by non-member %s", name, wrap.Signer.Nick())
	}
	if err := security.VerifyErr(wrap.Signer, wrap.Data, wrap.Signature); err != nil {
		return err
	}

	key, err := d.V.KeyForEpoch(d.GroupName, wrap.Epoch)
	if err != nil {
		return err
	}
	data, err := security.Open(wrap.Data, key)
	if err != nil {
		return err
	}
	var record txRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return core.Errf(core.CodeCrypto, "corrupted transaction %s: %v", name, err)
	}

	tx, err := d.V.DB.Conn().Begin()
	if err != nil {
		return core.Errf(core.CodeQuery, "cannot begin replay: %v", err)
	}
	for _, op := range record.Ops {
		q, err := d.V.DB.Lookup(op.Query)
		if err != nil {
			q = op.Query
		}
		if _, err := tx.Exec(q, op.Args.Named()...); err != nil {
			tx.Rollback()
			return core.Errf(core.CodeQuery, "replay of %s failed: %v", op.Query, err)
		}
	}
	if _, err := tx.Exec(d.V.DB.MustLookup("SET_TX"),
		sqlx.Args{"vault": d.V.ID, "groupName": d.GroupName.String(), "id": name, "applied": 1}.Named()...); err != nil {
		tx.Rollback()
		return core.Errf(core.CodeQuery, "cannot record transaction %s: %v", name, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Errf(core.CodeQuery, "cannot commit replay of %s: %v", name, err)
	}
	logd.Debugw("applied", "group", d.GroupName, "tx", name, "ops", len(record.Ops))
	return nil
}
