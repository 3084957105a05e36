package comm

import (
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

// Broadcast sends a message to every member of a group. The record is
// sealed under the group's active epoch: members removed afterwards
// can still read it, members removed before the epoch was cut cannot.
func (c *Comm) Broadcast(groupName vault.GroupName, m Message) (Message, error) {
	groups, err := c.V.GetGroups()
	if err != nil {
		return Message{}, err
	}
	if !groups[groupName].Contains(c.V.Identity.Id) {
		return Message{}, core.Errf(core.CodeAuthorization, "%s is not a member of group %s",
			c.V.Identity.Id.Nick(), groupName)
	}

	c.V.RLock()
	key, epoch, err := c.V.ActiveKey(groupName)
	c.V.RUnlock()
	if err != nil {
		return Message{}, err
	}
	return c.send(groupName.String(), m, key, epoch)
}

// Send delivers a message to a single member. The record is sealed
// under a key agreed between the two identities; no group key is
// involved, so membership changes never affect direct messages.
func (c *Comm) Send(dest security.ID, m Message) (Message, error) {
	key, err := security.DiffieHellmanKey(c.V.Identity, dest)
	if err != nil {
		return Message{}, err
	}
	return c.send(dest.String(), m, key, directEpoch)
}

func (c *Comm) send(dest string, m Message, key []byte, epoch int) (Message, error) {
	m.ID = core.SnowID()
	m.Sender = c.V.Identity.Id
	m.Dest = dest
	m.EncryptionEpoch = epoch
	m.SentAt = core.Now()

	// A file payload is uploaded as its own sealed object; the record
	// keeps the original name and points at the object implicitly via
	// the message id.
	if m.File != "" {
		data, err := os.ReadFile(m.File)
		if err != nil {
			return Message{}, err
		}
		sealed, err := security.Seal(data, key)
		if err != nil {
			return Message{}, err
		}
		if err := storage.WriteFile(c.ctx(), c.V.Store, msgName(dest, m.ID)+".data", sealed); err != nil {
			return Message{}, err
		}
	}

	record, err := msgpack.Marshal(m)
	if err != nil {
		return Message{}, err
	}
	sealed, err := security.Seal(record, key)
	if err != nil {
		return Message{}, err
	}
	signature, err := security.Sign(c.V.Identity, sealed)
	if err != nil {
		return Message{}, err
	}

	wrap := msgWrap{Sender: m.Sender, Epoch: epoch, Data: sealed, Signature: signature}
	if err := storage.WriteMsgPack(c.ctx(), c.V.Store, msgName(dest, m.ID), wrap); err != nil {
		return Message{}, err
	}
	if err := c.V.Touch(destKey(dest)); err != nil {
		logc.Warnw("touch after send failed", "dest", dest, "err", err)
	}
	logc.Debugw("sent", "dest", dest, "id", core.FormatID(m.ID), "size", len(m.Data))
	return m, nil
}
