package fs

import (
	"os"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

// PutOptions tune a single put.
type PutOptions struct {
	ID         FileID           // reuse this id instead of minting one, overwriting its content
	Tags       core.Set[string] // searchable whole-word tags
	Attributes map[string]any   // free-form metadata, stored in clear in the index
	Async      bool             // stage locally and upload in background
	DeleteSrc  bool             // remove the source file once uploaded (PutFile only)
}

// PutData encrypts data under the active epoch of groupName and writes
// it at dest. An existing entry on the same path is replaced. The
// caller must be a member of the group.
func (fs *FileSystem) PutData(dest string, data []byte, groupName vault.GroupName, opts PutOptions) (File, error) {
	return fs.put(dest, data, "", groupName, opts)
}

// PutFile reads src from the local disk and stores it at dest. With
// Async the upload happens in background and src doubles as the local
// copy until it completes.
func (fs *FileSystem) PutFile(dest, src string, groupName vault.GroupName, opts PutOptions) (File, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return File{}, err
	}
	return fs.put(dest, data, src, groupName, opts)
}

func (fs *FileSystem) put(dest string, data []byte, src string, groupName vault.GroupName, opts PutOptions) (File, error) {
	if groupName == "" {
		groupName = vault.UserGroup
	}
	if err := fs.checkMember(groupName); err != nil {
		return File{}, err
	}
	if err := fs.checkQuota(int64(len(data))); err != nil {
		return File{}, err
	}

	dir, name := core.SplitPath(normPath(dest))

	// Hold the read lock across key resolution and sealing so a
	// concurrent rotation cannot slide a new epoch under the write.
	fs.V.RLock()
	key, epoch, err := fs.V.ActiveKey(groupName)
	if err != nil {
		fs.V.RUnlock()
		return File{}, err
	}
	body, err := security.Seal(data, key)
	fs.V.RUnlock()
	if err != nil {
		return File{}, err
	}

	id := opts.ID
	if id == 0 {
		id = FileID(core.SnowID())
	}
	f := File{
		ID:         id,
		Dir:        dir,
		Name:       name,
		GroupName:  groupName,
		Creator:    fs.V.Identity.Id,
		Size:       int64(len(data)),
		ModTime:    core.Now(),
		Tags:       opts.Tags,
		Attributes: opts.Attributes,
		Epoch:      epoch,
	}

	if opts.Async {
		return fs.stagePut(f, key, epoch, body, src, opts.DeleteSrc)
	}

	if err := storage.WriteFile(fs.ctx(), fs.V.Store, bodyName(f.ID), body); err != nil {
		return File{}, err
	}
	if err := fs.writeHeader(f, key, epoch); err != nil {
		return File{}, err
	}
	if err := fs.V.Touch(headerDir(f.Dir)); err != nil {
		logf.Warnw("touch after put failed", "path", dest, "err", err)
	}
	if err := fs.indexFile(f); err != nil {
		return File{}, err
	}
	logf.Debugw("put", "path", f.Path(), "id", f.ID, "group", groupName, "epoch", epoch, "size", f.Size)
	return f, nil
}

// stagePut records the sealed body in the staging store and returns
// immediately. The background worker uploads the body, then the header,
// so other sessions never see a header without its content.
func (fs *FileSystem) stagePut(f File, key vault.Key, epoch int, body []byte, src string, deleteSrc bool) (File, error) {
	f.LocalCopy = src
	f.CopyTime = core.Now()
	if err := fs.indexFile(f); err != nil {
		return File{}, err
	}

	header, err := fs.sealHeader(f, key, epoch)
	if err != nil {
		return File{}, err
	}
	err = fs.jobs.enqueue(job{
		Kind:       jobUpload,
		FileID:     uint64(f.ID),
		Dir:        f.Dir,
		BodyName:   bodyName(f.ID),
		HeaderName: headerName(f.Dir, f.ID),
		Header:     header,
		Body:       body,
		Src:        src,
		DeleteSrc:  deleteSrc,
	})
	if err != nil {
		return File{}, err
	}
	return f, nil
}

func (fs *FileSystem) checkMember(groupName vault.GroupName) error {
	groups, err := fs.V.GetGroups()
	if err != nil {
		return err
	}
	if !groups[groupName].Contains(fs.V.Identity.Id) {
		return core.Errf(core.CodeAuthorization, "%s is not a member of group %s", fs.V.Identity.Id.Nick(), groupName)
	}
	return nil
}

// checkQuota rejects a write that would push the vault past its
// configured size limit. A zero quota means unlimited.
func (fs *FileSystem) checkQuota(size int64) error {
	if fs.V.Config.Quota <= 0 {
		return nil
	}
	var usage int64
	if err := fs.V.DB.QueryRow("GET_VAULT_USAGE", sqlx.Args{"vault": fs.V.ID}, &usage); err != nil && err != sqlx.ErrNoRows {
		return err
	}
	if usage+size > fs.V.Config.Quota {
		return core.Errf(core.CodeQuotaExceeded, "vault quota of %d bytes exceeded: %d used, %d requested",
			fs.V.Config.Quota, usage, size)
	}
	return nil
}
