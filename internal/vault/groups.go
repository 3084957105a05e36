package vault

import (
	"bytes"
	"encoding/binary"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
)

// GroupName identifies a named set of members sharing a key chain.
type GroupName string

// Well-known groups. The administrative group controls membership, the
// user group is the default namespace for content.
const (
	AdminGroup GroupName = "adm"
	UserGroup  GroupName = "usr"
)

func (g GroupName) String() string { return string(g) }

// Groups maps each group to its member set.
type Groups map[GroupName]core.Set[security.ID]

// Change is a membership mutation kind.
type Change int

const (
	Grant Change = iota
	Revoke
)

// GroupChange is one signed membership mutation. Changes form a chain:
// each signature covers the previous change's signature, so a verifier
// can detect tampering and forks.
type GroupChange struct {
	Group     GroupName   `msgpack:"g"`
	Change    Change      `msgpack:"c"`
	User      security.ID `msgpack:"u"`
	Signer    security.ID `msgpack:"k"`
	Timestamp int64       `msgpack:"t"`
	Signature []byte      `msgpack:"s"`
}

// GroupChain is the replicated membership history plus the member sets
// derived from it.
type GroupChain struct {
	Changes []GroupChange
	Groups  Groups
}

// GetGroups returns the current member sets, synchronizing the chain
// with the backing store first.
func (v *Vault) GetGroups() (Groups, error) {
	chain, err := v.syncChain()
	if err != nil {
		return nil, err
	}
	return chain.Groups, nil
}

// ListGroups returns the names of the groups the session identity
// belongs to.
func (v *Vault) ListGroups() ([]GroupName, error) {
	groups, err := v.GetGroups()
	if err != nil {
		return nil, err
	}
	var names []GroupName
	for name, users := range groups {
		if users.Contains(v.Identity.Id) {
			names = append(names, name)
		}
	}
	return names, nil
}

// UpdateGroup applies a membership change for each listed user and
// returns the resulting member sets. Granting to an unknown group
// creates it; revoking an absent member is a no-op. Any revoke appends
// a new key epoch so removed members cannot decrypt later content.
// Existing content stays under its original epoch.
//
// The rotation (epoch append plus keystore rewrite) runs under the
// vault write lock, so a concurrent put or send either completes under
// the previous epoch or starts under the new one.
func (v *Vault) UpdateGroup(groupName GroupName, change Change, users ...security.ID) (Groups, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	chain, err := v.syncChain()
	if err != nil {
		return nil, err
	}

	groups := cloneGroups(chain.Groups)
	bootstrap := len(chain.Changes) == 0
	if !bootstrap && !groups[AdminGroup].Contains(v.Identity.Id) {
		return nil, core.Errf(core.CodeAuthorization, "user %s has no admin rights on vault %s",
			v.Identity.Id.Nick(), v.ID)
	}
	if bootstrap && v.Identity.Id != v.CreatorID {
		return nil, core.Errf(core.CodeAuthorization, "only the creator can bootstrap vault %s", v.ID)
	}

	var lastSignature []byte
	if n := len(chain.Changes); n > 0 {
		lastSignature = chain.Changes[n-1].Signature
	}

	var added []GroupChange
	var rotate bool
	for _, user := range users {
		if change == Grant && groups[groupName].Contains(user) {
			continue
		}
		if change == Revoke && !groups[groupName].Contains(user) {
			continue
		}
		if change == Revoke && groupName == AdminGroup && len(groups[AdminGroup]) == 1 {
			return nil, core.Errf(core.CodeConflict, "cannot remove the last administrator of vault %s", v.ID)
		}

		gc := GroupChange{
			Group:     groupName,
			Change:    change,
			User:      user,
			Signer:    v.Identity.Id,
			Timestamp: core.Now().UnixMicro(),
		}
		gc.Signature, err = security.Sign(v.Identity, changeHash(gc, lastSignature))
		if err != nil {
			return nil, err
		}
		if err := applyChange(gc, groups, v.CreatorID); err != nil {
			return nil, err
		}
		if change == Revoke {
			rotate = true
		}
		added = append(added, gc)
		lastSignature = gc.Signature
	}

	if len(added) == 0 {
		return groups, nil
	}

	chain.Changes = append(chain.Changes, added...)
	chain.Groups = groups

	if err := storage.WriteMsgPack(v.ctx(), v.Store, chainName, chain.Changes); err != nil {
		return nil, err
	}
	if err := v.Touch(groupsDir); err != nil {
		return nil, err
	}
	if err := config.SetStruct(v.DB, config.NodeGroupChain, v.ID, chain); err != nil {
		return nil, err
	}

	if _, err := v.rotateKeys(groupName, groups, rotate); err != nil {
		return nil, err
	}

	logv.Infow("group updated", "vault", v.ID, "group", groupName,
		"change", change, "members", len(groups[groupName]))
	return groups, nil
}

// syncChain reconciles the local chain copy with the store. The longer
// of two valid chains wins; a fork that does not verify is discarded.
func (v *Vault) syncChain() (GroupChain, error) {
	var local GroupChain
	err := config.GetStruct(v.DB, config.NodeGroupChain, v.ID, &local)
	if err != nil && err != sqlx.ErrNoRows {
		return GroupChain{}, err
	}
	haveLocal := err == nil

	if haveLocal && !v.IsUpdated(groupsDir) {
		return local, nil
	}

	var remote []GroupChange
	err = storage.ReadMsgPack(v.ctx(), v.Store, chainName, &remote)
	if err != nil && !core.IsNotFound(err) {
		return GroupChain{}, err
	}

	valid, groups, err := replayChain(remote, v.CreatorID)
	if err != nil {
		return GroupChain{}, err
	}

	switch {
	case len(valid) > len(local.Changes):
		local = GroupChain{Changes: valid, Groups: groups}
		if err := config.SetStruct(v.DB, config.NodeGroupChain, v.ID, local); err != nil {
			return GroupChain{}, err
		}
	case len(valid) < len(local.Changes):
		// local is ahead, publish it
		if err := storage.WriteMsgPack(v.ctx(), v.Store, chainName, local.Changes); err != nil {
			return GroupChain{}, err
		}
		if err := v.Touch(groupsDir); err != nil {
			return GroupChain{}, err
		}
	}
	if local.Groups == nil {
		local.Groups = Groups{}
	}
	v.Observe(groupsDir)
	return local, nil
}

// replayChain validates the signature chain and rebuilds the member
// sets. Validation stops at the first invalid change; everything before
// it is kept.
func replayChain(changes []GroupChange, creatorID security.ID) ([]GroupChange, Groups, error) {
	groups := Groups{}
	var lastSignature []byte

	for i, gc := range changes {
		if !security.Verify(gc.Signer, changeHash(gc, lastSignature), gc.Signature) {
			logv.Warnw("group chain truncated at invalid signature", "index", i, "signer", gc.Signer.Nick())
			return changes[:i], groups, nil
		}
		if err := applyChange(gc, groups, creatorID); err != nil {
			return changes[:i], groups, nil
		}
		lastSignature = gc.Signature
	}
	return changes, groups, nil
}

// applyChange mutates groups in place, enforcing that only admins (or
// the creator, while the chain is empty) may sign changes.
func applyChange(gc GroupChange, groups Groups, creatorID security.ID) error {
	bootstrap := len(groups) == 0 && gc.Signer == creatorID
	if !bootstrap && !groups[AdminGroup].Contains(gc.Signer) {
		return core.Errf(core.CodeAuthorization, "signer %s has no admin rights", gc.Signer.Nick())
	}

	switch gc.Change {
	case Grant:
		if groups[gc.Group] == nil {
			groups[gc.Group] = core.NewSet(gc.User)
		} else {
			groups[gc.Group].Add(gc.User)
		}
	case Revoke:
		if groups[gc.Group] != nil {
			groups[gc.Group].Remove(gc.User)
		}
	}
	return nil
}

func changeHash(gc GroupChange, lastSignature []byte) []byte {
	var buf bytes.Buffer
	buf.Write(lastSignature)
	buf.WriteString(string(gc.Group))
	buf.WriteString(string(gc.User))
	buf.WriteString(string(gc.Signer))
	buf.Write(binary.AppendVarint(nil, int64(gc.Change)))
	buf.Write(binary.AppendVarint(nil, gc.Timestamp))
	return security.Hash(buf.Bytes())
}

func cloneGroups(groups Groups) Groups {
	c := Groups{}
	for name, users := range groups {
		c[name] = users.Clone()
	}
	return c
}
