package envelope

import (
	"github.com/stregato/owndata/internal/comm"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/db"
	"github.com/stregato/owndata/internal/fs"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/vault"
)

// CreateVault initializes a vault at url and returns its handle.
func (a *API) CreateVault(url string, cfg vault.Config) Result {
	v, err := vault.Create(a.DB, a.Identity, url, cfg)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.vaults.Add(v), v.ID)
}

// OpenVault connects to an existing vault.
func (a *API) OpenVault(url string) Result {
	v, err := vault.Open(a.DB, a.Identity, url)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.vaults.Add(v), v.ID)
}

// CloseVault releases a vault handle. Closing twice is a no-op.
func (a *API) CloseVault(h Handle) Result {
	v, ok := a.vaults.Remove(h)
	if !ok {
		return Result{}
	}
	if err := v.Close(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// UpdateGroup grants or revokes membership and returns the resulting
// groups.
func (a *API) UpdateGroup(h Handle, groupName string, change vault.Change, users []string) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	ids := make([]security.ID, 0, len(users))
	for _, u := range users {
		id, err := security.CastID(u)
		if err != nil {
			return Fail(err)
		}
		ids = append(ids, id)
	}
	groups, err := v.UpdateGroup(vault.GroupName(groupName), change, ids...)
	if err != nil {
		return Fail(err)
	}
	return OK(groups)
}

// GetGroups returns the current group composition.
func (a *API) GetGroups(h Handle) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	groups, err := v.GetGroups()
	if err != nil {
		return Fail(err)
	}
	return OK(groups)
}

// GetKeys returns the newest epoch keys of a group, newest first.
func (a *API) GetKeys(h Handle, groupName string, minEpochCount int) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	keys, err := v.GetKeys(vault.GroupName(groupName), minEpochCount)
	if err != nil {
		return Fail(err)
	}
	return OK(keys)
}

// OpenFS starts an object-store session on a vault.
func (a *API) OpenFS(h Handle) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	f, err := fs.Open(v)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.fss.Add(f), nil)
}

// CloseFS stops an object-store session. Closing twice is a no-op.
func (a *API) CloseFS(h Handle) Result {
	f, ok := a.fss.Remove(h)
	if !ok {
		return Result{}
	}
	if err := f.Close(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// PutData stores data at dest.
func (a *API) PutData(h Handle, dest string, data []byte, groupName string, opts fs.PutOptions) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	file, err := f.PutData(dest, data, vault.GroupName(groupName), opts)
	if err != nil {
		return Fail(err)
	}
	return OK(file)
}

// PutFile stores a local file at dest.
func (a *API) PutFile(h Handle, dest, src string, groupName string, opts fs.PutOptions) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	file, err := f.PutFile(dest, src, vault.GroupName(groupName), opts)
	if err != nil {
		return Fail(err)
	}
	return OK(file)
}

// GetData fetches and decrypts the entry at src.
func (a *API) GetData(h Handle, src string) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	data, err := f.GetData(src)
	if err != nil {
		return Fail(err)
	}
	return OK(data)
}

// GetFile fetches the entry at src into a local file.
func (a *API) GetFile(h Handle, src, dest string, opts fs.GetOptions) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	file, err := f.GetFile(src, dest, opts)
	if err != nil {
		return Fail(err)
	}
	return OK(file)
}

// ListDir lists the entries of a directory.
func (a *API) ListDir(h Handle, dir string, opts fs.ListOptions) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	files, err := f.List(dir, opts)
	if err != nil {
		return Fail(err)
	}
	return OK(files)
}

// StatFile returns the metadata of one entry.
func (a *API) StatFile(h Handle, path string) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	file, err := f.Stat(path)
	if err != nil {
		return Fail(err)
	}
	return OK(file)
}

// RenameFile moves an entry to a free destination path.
func (a *API) RenameFile(h Handle, old, new string) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	file, err := f.Rename(old, new)
	if err != nil {
		return Fail(err)
	}
	return OK(file)
}

// DeleteFile removes an entry.
func (a *API) DeleteFile(h Handle, path string) Result {
	f, err := a.fss.Get(h)
	if err != nil {
		return Fail(err)
	}
	if err := f.Delete(path); err != nil {
		return Fail(err)
	}
	return Result{}
}

// OpenDB starts a structured-store session for a group.
func (a *API) OpenDB(h Handle, groupName string, ddls db.DDL) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	d, err := db.Open(v, vault.GroupName(groupName), ddls)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.dbs.Add(d), nil)
}

// CloseDB releases a structured-store session. Closing twice is a
// no-op.
func (a *API) CloseDB(h Handle) Result {
	a.dbs.Remove(h)
	return Result{}
}

// Exec runs one named update as its own replicated transaction.
func (a *API) Exec(h Handle, query string, args map[string]any) Result {
	d, err := a.dbs.Get(h)
	if err != nil {
		return Fail(err)
	}
	res, err := d.Exec(query, args)
	if err != nil {
		return Fail(err)
	}
	n, _ := res.RowsAffected()
	return OK(n)
}

// Query runs a named read and returns a cursor handle.
func (a *API) Query(h Handle, query string, args map[string]any) Result {
	d, err := a.dbs.Get(h)
	if err != nil {
		return Fail(err)
	}
	rows, err := d.Query(query, args)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.rows.Add(rows), nil)
}

// NextRow advances a cursor; the payload is null past the last row.
func (a *API) NextRow(h Handle) Result {
	rows, err := a.rows.Get(h)
	if err != nil {
		return Fail(err)
	}
	row, ok, err := rows.NextRow()
	if err != nil {
		return Fail(err)
	}
	if !ok {
		return Result{}
	}
	return OK(row)
}

// CloseRows releases a cursor. Closing twice is a no-op.
func (a *API) CloseRows(h Handle) Result {
	rows, ok := a.rows.Remove(h)
	if !ok {
		return Result{}
	}
	if err := rows.Close(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// Begin starts a staged transaction and returns its handle.
func (a *API) Begin(h Handle) Result {
	d, err := a.dbs.Get(h)
	if err != nil {
		return Fail(err)
	}
	tx, err := d.Transaction()
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.txs.Add(tx), nil)
}

// ExecTx stages one update inside a transaction.
func (a *API) ExecTx(h Handle, query string, args map[string]any) Result {
	tx, err := a.txs.Get(h)
	if err != nil {
		return Fail(err)
	}
	res, err := tx.Exec(query, args)
	if err != nil {
		return Fail(err)
	}
	n, _ := res.RowsAffected()
	return OK(n)
}

// Commit replicates and applies a staged transaction, releasing its
// handle.
func (a *API) Commit(h Handle) Result {
	tx, ok := a.txs.Remove(h)
	if !ok {
		return Fail(core.Errf(core.CodeNotFound, "stale transaction handle %d", h))
	}
	if err := tx.Commit(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// Rollback discards a staged transaction. Rolling back twice, or a
// handle already committed, is a no-op.
func (a *API) Rollback(h Handle) Result {
	tx, ok := a.txs.Remove(h)
	if !ok {
		return Result{}
	}
	if err := tx.Rollback(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// IncCounter stages an increment of a distributed counter inside a
// transaction.
func (a *API) IncCounter(h Handle, name, key string, delta int64) Result {
	tx, err := a.txs.Get(h)
	if err != nil {
		return Fail(err)
	}
	if err := tx.IncCounter(name, key, delta); err != nil {
		return Fail(err)
	}
	return Result{}
}

// GetCounter reads the merged value of a distributed counter.
func (a *API) GetCounter(h Handle, name, key string) Result {
	d, err := a.dbs.Get(h)
	if err != nil {
		return Fail(err)
	}
	value, err := d.GetCounter(name, key)
	if err != nil {
		return Fail(err)
	}
	return OK(value)
}

// SyncDB pulls and applies transactions committed by other members.
func (a *API) SyncDB(h Handle) Result {
	d, err := a.dbs.Get(h)
	if err != nil {
		return Fail(err)
	}
	if err := d.Sync(); err != nil {
		return Fail(err)
	}
	return Result{}
}

// OpenComm starts a messaging session on a vault.
func (a *API) OpenComm(h Handle) Result {
	v, err := a.vaults.Get(h)
	if err != nil {
		return Fail(err)
	}
	return WithHandle(a.comms.Add(comm.Open(v)), nil)
}

// CloseComm releases a messaging session. Closing twice is a no-op.
func (a *API) CloseComm(h Handle) Result {
	a.comms.Remove(h)
	return Result{}
}

// Send delivers a direct message to one member.
func (a *API) Send(h Handle, dest string, m comm.Message) Result {
	c, err := a.comms.Get(h)
	if err != nil {
		return Fail(err)
	}
	id, err := security.CastID(dest)
	if err != nil {
		return Fail(err)
	}
	sent, err := c.Send(id, m)
	if err != nil {
		return Fail(err)
	}
	return OK(sent)
}

// Broadcast delivers a message to every member of a group.
func (a *API) Broadcast(h Handle, groupName string, m comm.Message) Result {
	c, err := a.comms.Get(h)
	if err != nil {
		return Fail(err)
	}
	sent, err := c.Broadcast(vault.GroupName(groupName), m)
	if err != nil {
		return Fail(err)
	}
	return OK(sent)
}

// Receive returns the unconsumed messages on a destination.
func (a *API) Receive(h Handle, dest string, opts comm.ReceiveOptions) Result {
	c, err := a.comms.Get(h)
	if err != nil {
		return Fail(err)
	}
	msgs, err := c.Receive(dest, opts)
	if err != nil {
		return Fail(err)
	}
	return OK(msgs)
}

// Rewind moves the replay cursor of a destination back to the given
// id; messages above it are delivered again.
func (a *API) Rewind(h Handle, dest string, id uint64) Result {
	c, err := a.comms.Get(h)
	if err != nil {
		return Fail(err)
	}
	if err := c.Rewind(dest, id); err != nil {
		return Fail(err)
	}
	return Result{}
}

// DownloadMessage fetches the file payload of a message into destPath.
func (a *API) DownloadMessage(h Handle, m comm.Message, destPath string) Result {
	c, err := a.comms.Get(h)
	if err != nil {
		return Fail(err)
	}
	if err := c.Download(m, destPath); err != nil {
		return Fail(err)
	}
	return Result{}
}
