package envelope

import (
	"encoding/json"

	"github.com/stregato/owndata/internal/comm"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/db"
	"github.com/stregato/owndata/internal/fs"
	"github.com/stregato/owndata/internal/vault"
)

// args is the union of every operation's parameters. Operations read
// only the fields they need; a JSON caller sends just those.
type args struct {
	Handle    Handle              `json:"handle,omitempty"`
	URL       string              `json:"url,omitempty"`
	Config    vault.Config        `json:"config,omitempty"`
	GroupName string              `json:"groupName,omitempty"`
	Change    vault.Change        `json:"change,omitempty"`
	Users     []string            `json:"users,omitempty"`
	MinEpochs int                 `json:"minEpochs,omitempty"`
	Path      string              `json:"path,omitempty"`
	Dest      string              `json:"dest,omitempty"`
	Src       string              `json:"src,omitempty"`
	Data      []byte              `json:"data,omitempty"`
	PutOpts   fs.PutOptions       `json:"putOptions,omitempty"`
	GetOpts   fs.GetOptions       `json:"getOptions,omitempty"`
	ListOpts  fs.ListOptions      `json:"listOptions,omitempty"`
	DDLs      db.DDL              `json:"ddls,omitempty"`
	Query     string              `json:"query,omitempty"`
	Args      map[string]any      `json:"args,omitempty"`
	Message   comm.Message        `json:"message,omitempty"`
	RecvOpts  comm.ReceiveOptions `json:"receiveOptions,omitempty"`
	ID        uint64              `json:"id,omitempty"`
	Counter   string              `json:"counter,omitempty"`
	Key       string              `json:"key,omitempty"`
	Delta     int64               `json:"delta,omitempty"`
}

// Dispatch routes one operation by name. Unknown operations and
// malformed arguments fail like any other error: inside the Result,
// never as a panic across the boundary.
func (a *API) Dispatch(op string, jsonArgs []byte) Result {
	var in args
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &in); err != nil {
			return Fail(core.Errf(core.CodeQuery, "malformed arguments for %s: %v", op, err))
		}
	}

	switch op {
	case "createVault":
		return a.CreateVault(in.URL, in.Config)
	case "openVault":
		return a.OpenVault(in.URL)
	case "closeVault":
		return a.CloseVault(in.Handle)
	case "updateGroup":
		return a.UpdateGroup(in.Handle, in.GroupName, in.Change, in.Users)
	case "getGroups":
		return a.GetGroups(in.Handle)
	case "getKeys":
		return a.GetKeys(in.Handle, in.GroupName, in.MinEpochs)
	case "openFS":
		return a.OpenFS(in.Handle)
	case "closeFS":
		return a.CloseFS(in.Handle)
	case "putData":
		return a.PutData(in.Handle, in.Dest, in.Data, in.GroupName, in.PutOpts)
	case "putFile":
		return a.PutFile(in.Handle, in.Dest, in.Src, in.GroupName, in.PutOpts)
	case "getData":
		return a.GetData(in.Handle, in.Src)
	case "getFile":
		return a.GetFile(in.Handle, in.Src, in.Dest, in.GetOpts)
	case "list":
		return a.ListDir(in.Handle, in.Path, in.ListOpts)
	case "stat":
		return a.StatFile(in.Handle, in.Path)
	case "rename":
		return a.RenameFile(in.Handle, in.Src, in.Dest)
	case "delete":
		return a.DeleteFile(in.Handle, in.Path)
	case "openDB":
		return a.OpenDB(in.Handle, in.GroupName, in.DDLs)
	case "closeDB":
		return a.CloseDB(in.Handle)
	case "exec":
		return a.Exec(in.Handle, in.Query, in.Args)
	case "query":
		return a.Query(in.Handle, in.Query, in.Args)
	case "nextRow":
		return a.NextRow(in.Handle)
	case "closeRows":
		return a.CloseRows(in.Handle)
	case "transaction":
		return a.Begin(in.Handle)
	case "execTx":
		return a.ExecTx(in.Handle, in.Query, in.Args)
	case "commit":
		return a.Commit(in.Handle)
	case "rollback", "cancel":
		return a.Rollback(in.Handle)
	case "syncDB":
		return a.SyncDB(in.Handle)
	case "incCounter":
		return a.IncCounter(in.Handle, in.Counter, in.Key, in.Delta)
	case "getCounter":
		return a.GetCounter(in.Handle, in.Counter, in.Key)
	case "openComm":
		return a.OpenComm(in.Handle)
	case "closeComm":
		return a.CloseComm(in.Handle)
	case "send":
		return a.Send(in.Handle, in.Dest, in.Message)
	case "broadcast":
		return a.Broadcast(in.Handle, in.GroupName, in.Message)
	case "receive":
		return a.Receive(in.Handle, in.Dest, in.RecvOpts)
	case "rewind":
		return a.Rewind(in.Handle, in.Dest, in.ID)
	case "download":
		return a.DownloadMessage(in.Handle, in.Message, in.Dest)
	}
	return Fail(core.Errf(core.CodeNotFound, "unknown operation %s", op))
}
