package comm

import (
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stregato/owndata/internal/config"
	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

// ReceiveOptions narrow a receive.
type ReceiveOptions struct {
	Limit int // messages per call, 0 for all pending
}

// Receive returns the messages addressed to dest that this member has
// not consumed yet, oldest first, and advances the replay cursor past
// them. Two concurrent receives on the same destination race on the
// cursor, so the second one fails with Concurrency. Records that do
// not verify or cannot be opened are skipped.
func (c *Comm) Receive(dest string, opts ReceiveOptions) ([]Message, error) {
	if !isDirect(dest) {
		groups, err := c.V.GetGroups()
		if err != nil {
			return nil, err
		}
		if !groups[vault.GroupName(dest)].Contains(c.V.Identity.Id) {
			return nil, core.Errf(core.CodeAuthorization, "%s is not a member of group %s",
				c.V.Identity.Id.Nick(), dest)
		}
	}

	if err := c.acquire(dest); err != nil {
		return nil, err
	}
	defer c.release(dest)

	cursor := c.cursor(dest)
	ls, err := c.V.Store.ReadDir(c.ctx(), destKey(dest), storage.Filter{AfterName: cursor, OnlyFiles: true})
	if core.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []Message
	last := cursor
	for _, l := range ls {
		if l.Name == ".touch" || len(l.Name) != 16 {
			continue
		}
		if opts.Limit > 0 && len(msgs) >= opts.Limit {
			break
		}
		m, err := c.open(dest, l.Name)
		if err != nil {
			logc.Warnw("skipping message", "dest", dest, "name", l.Name, "err", err)
			last = l.Name
			continue
		}
		msgs = append(msgs, m)
		last = l.Name
	}
	if last != cursor {
		if err := c.setCursor(dest, last); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Rewind moves the replay cursor of dest back to id: every message
// with a greater id is delivered again. The id is a cursor value, not
// a message reference, so any value up to the newest message on the
// destination is valid; zero rewinds to the beginning. An id ahead of
// the high-water mark yields NotFound.
func (c *Comm) Rewind(dest string, id uint64) error {
	if err := c.acquire(dest); err != nil {
		return err
	}
	defer c.release(dest)

	name := core.FormatID(id)
	if id > 0 {
		mark, err := c.highWater(dest)
		if err != nil {
			return err
		}
		if name > mark {
			return core.Errf(core.CodeNotFound, "no message up to %s on %s", name, dest)
		}
	}
	return c.setCursor(dest, name)
}

// highWater returns the name of the newest message on dest, or "" when
// the destination is empty.
func (c *Comm) highWater(dest string) (string, error) {
	ls, err := c.V.Store.ReadDir(c.ctx(), destKey(dest), storage.Filter{OnlyFiles: true})
	if core.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var mark string
	for _, l := range ls {
		if len(l.Name) == 16 && l.Name > mark {
			mark = l.Name
		}
	}
	return mark, nil
}

// Download fetches the file payload of a message and writes the
// plaintext to destPath.
func (c *Comm) Download(m Message, destPath string) error {
	sealed, err := storage.ReadFile(c.ctx(), c.V.Store, msgName(m.Dest, m.ID)+".data")
	if err != nil {
		if core.IsNotFound(err) {
			return core.Errf(core.CodeNotFound, "message %s carries no payload", core.FormatID(m.ID))
		}
		return err
	}
	key, err := c.keyFor(m.Sender, m.Dest, m.EncryptionEpoch)
	if err != nil {
		return err
	}
	data, err := security.Open(sealed, key)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

// open fetches and verifies one message record.
func (c *Comm) open(dest, name string) (Message, error) {
	var wrap msgWrap
	if err := storage.ReadMsgPack(c.ctx(), c.V.Store, destKey(dest)+"/"+name, &wrap); err != nil {
		return Message{}, err
	}
	if err := security.VerifyErr(wrap.Sender, wrap.Data, wrap.Signature); err != nil {
		return Message{}, err
	}
	key, err := c.keyFor(wrap.Sender, dest, wrap.Epoch)
	if err != nil {
		return Message{}, err
	}
	record, err := security.Open(wrap.Data, key)
	if err != nil {
		return Message{}, err
	}
	var m Message
	if err := msgpack.Unmarshal(record, &m); err != nil {
		return Message{}, core.Errf(core.CodeCrypto, "corrupted message %s: %v", name, err)
	}
	if m.Sender != wrap.Sender {
		return Message{}, core.Errf(core.CodeCrypto, "message %s sender mismatch", name)
	}
	return m, nil
}

// keyFor resolves the key a record was sealed under: the pairwise
// agreed key for direct messages, the referenced group epoch otherwise.
func (c *Comm) keyFor(sender security.ID, dest string, epoch int) ([]byte, error) {
	if epoch == directEpoch || isDirect(dest) {
		peer := sender
		if peer == c.V.Identity.Id {
			// Reading back an own direct message: derive against the
			// destination instead.
			id, err := security.CastID(dest)
			if err != nil {
				return nil, err
			}
			peer = id
		}
		return security.DiffieHellmanKey(c.V.Identity, peer)
	}
	return c.V.KeyForEpoch(vault.GroupName(dest), epoch)
}

func (c *Comm) acquire(dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.receiving[dest] {
		return core.Errf(core.CodeConcurrency, "another receive is in progress on %s", dest)
	}
	c.receiving[dest] = true
	return nil
}

func (c *Comm) release(dest string) {
	c.mu.Lock()
	delete(c.receiving, dest)
	c.mu.Unlock()
}

// cursor returns the name of the last consumed message on dest, or ""
// when nothing was consumed yet.
func (c *Comm) cursor(dest string) string {
	s, _, _, ok := config.GetValue(c.V.DB, config.NodeComm, c.cursorKey(dest))
	if !ok {
		return ""
	}
	return s
}

func (c *Comm) setCursor(dest, name string) error {
	return config.SetValue(c.V.DB, config.NodeComm, c.cursorKey(dest), name, 0, nil)
}
