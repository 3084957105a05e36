// Package comm is the messaging channel of a vault: short messages and
// file payloads addressed either to a group (sealed under the group's
// active epoch) or directly to one member (sealed under a key agreed
// between the two identities). Every member keeps an independent replay
// cursor per destination, so consuming a message never hides it from
// other members.
package comm

import (
	"context"
	"fmt"
	"hash/fnv"
	"path"
	"sync"
	"time"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/vault"
)

var logc = core.Log("comm")

const commDir = "comm"

// Message is one unit of communication. Text and Data travel inside
// the sealed record; File references a separately stored payload that
// Download fetches on demand.
type Message struct {
	ID              uint64      `json:"id" msgpack:"i"`
	Sender          security.ID `json:"sender" msgpack:"s"`
	Dest            string      `json:"dest" msgpack:"d"`
	Text            string      `json:"text,omitempty" msgpack:"t"`
	Data            []byte      `json:"data,omitempty" msgpack:"b"`
	File            string      `json:"file,omitempty" msgpack:"f"`
	EncryptionEpoch int         `json:"encryptionKeyRef" msgpack:"e"`
	SentAt          time.Time   `json:"sentAt" msgpack:"w"`
}

// msgWrap is the on-store envelope. Sender and epoch stay in clear so
// a receiver can derive the right key; the signature covers the sealed
// record.
type msgWrap struct {
	Sender    security.ID `msgpack:"s"`
	Epoch     int         `msgpack:"e"`
	Data      []byte      `msgpack:"d"`
	Signature []byte      `msgpack:"g"`
}

// directEpoch marks records sealed under a pairwise agreed key instead
// of a group epoch.
const directEpoch = -1

// Comm is a messaging session on one vault. Receives on the same
// destination are serialized: a second concurrent receive fails with
// Concurrency instead of splitting the cursor advance.
type Comm struct {
	V *vault.Vault

	mu        sync.Mutex
	receiving map[string]bool
}

// Open starts a messaging session.
func Open(v *vault.Vault) *Comm {
	return &Comm{V: v, receiving: map[string]bool{}}
}

func (c *Comm) ctx() context.Context {
	return context.Background()
}

// destKey buckets message objects per destination.
func destKey(dest string) string {
	h := fnv.New64a()
	h.Write([]byte(dest))
	return path.Join(commDir, fmt.Sprintf("%016x", h.Sum64()))
}

func msgName(dest string, id uint64) string {
	return path.Join(destKey(dest), core.FormatID(id))
}

// isDirect reports whether dest addresses a single identity rather
// than a group.
func isDirect(dest string) bool {
	_, err := security.CastID(dest)
	return err == nil
}

// cursorKey is the config key of the replay cursor for one
// destination. Cursors are local per member: they never replicate.
func (c *Comm) cursorKey(dest string) string {
	return fmt.Sprintf("cursor/%s/%s", c.V.ID, dest)
}
