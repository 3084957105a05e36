package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/stregato/owndata/internal/core"
	"github.com/stregato/owndata/internal/security"
	"github.com/stregato/owndata/internal/sqlx"
	"github.com/stregato/owndata/internal/storage"
	"github.com/stregato/owndata/internal/vault"
)

type jobKind int

const (
	jobUpload jobKind = iota + 1
	jobDownload
)

// job is one staged transfer. Jobs survive process restarts: they live
// in a bolt file next to the catalog and are resumed by the next
// session that opens the same vault.
type job struct {
	Kind       jobKind `msgpack:"k"`
	FileID     uint64  `msgpack:"f"`
	Dir        string  `msgpack:"d"`
	Group      string  `msgpack:"g"`
	Epoch      int     `msgpack:"e"`
	BodyName   string  `msgpack:"b"`
	HeaderName string  `msgpack:"h"`
	Header     []byte  `msgpack:"w"`
	Body       []byte  `msgpack:"y"`
	Src        string  `msgpack:"s"`
	Dest       string  `msgpack:"t"`
	DeleteSrc  bool    `msgpack:"x"`
}

var jobsBucket = []byte("jobs")

// asyncQueue drains staged transfers in a background goroutine. The
// signal channel has a buffer of one so bursts of enqueues coalesce
// into a single wake-up.
type asyncQueue struct {
	fs     *FileSystem
	bolt   *bbolt.DB
	signal chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// stagingPath keeps one bolt file per catalog. In-memory catalogs get
// a per-vault file under the temp dir.
func stagingPath(fs *FileSystem) string {
	if fs.V.DB.Path == sqlx.MemoryPath {
		return filepath.Join(os.TempDir(), fmt.Sprintf("owndata-staging-%s.db", hashDir(fs.V.ID)))
	}
	return fs.V.DB.Path + ".staging"
}

func openAsyncQueue(fs *FileSystem) (*asyncQueue, error) {
	bolt, err := bbolt.Open(stagingPath(fs), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = bolt.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		bolt.Close()
		return nil, err
	}

	q := &asyncQueue{
		fs:     fs,
		bolt:   bolt,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	q.wake()
	return q, nil
}

func (q *asyncQueue) enqueue(j job) error {
	data, err := msgpack.Marshal(j)
	if err != nil {
		return err
	}
	key := []byte(uuid.NewString())
	err = q.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Put(key, data)
	})
	if err != nil {
		return err
	}
	q.wake()
	return nil
}

func (q *asyncQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *asyncQueue) close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.wg.Wait()
	return q.bolt.Close()
}

func (q *asyncQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
			q.drain()
		}
	}
}

// drain processes every staged job. A job that keeps failing after the
// retry budget is dropped and its error recorded on the entry, so a
// broken transfer never wedges the queue.
func (q *asyncQueue) drain() {
	for {
		var key []byte
		var j job
		err := q.bolt.View(func(tx *bbolt.Tx) error {
			k, v := tx.Bucket(jobsBucket).Cursor().First()
			if k == nil {
				return nil
			}
			key = append([]byte(nil), k...)
			return msgpack.Unmarshal(v, &j)
		})
		if err != nil {
			logf.Errorw("corrupted staging entry", "err", err)
			return
		}
		if key == nil {
			return
		}

		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
		err = backoff.Retry(func() error { return q.process(j) }, policy)
		if err != nil {
			logf.Errorw("staged transfer failed", "file", core.FormatID(j.FileID), "err", err)
			q.recordFailure(j, err)
		}
		if err := q.remove(key); err != nil {
			logf.Errorw("cannot remove staged job", "err", err)
			return
		}

		select {
		case <-q.done:
			return
		default:
		}
	}
}

func (q *asyncQueue) remove(key []byte) error {
	return q.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).Delete(key)
	})
}

func (q *asyncQueue) process(j job) error {
	switch j.Kind {
	case jobUpload:
		return q.upload(j)
	case jobDownload:
		return q.download(j)
	default:
		return backoff.Permanent(fmt.Errorf("unknown job kind %d", j.Kind))
	}
}

// upload completes an asynchronous put: body first, header second, so
// other sessions never discover a header whose content is missing.
func (q *asyncQueue) upload(j job) error {
	fs := q.fs
	if err := storage.WriteFile(fs.ctx(), fs.V.Store, j.BodyName, j.Body); err != nil {
		return err
	}
	if err := storage.WriteFile(fs.ctx(), fs.V.Store, j.HeaderName, j.Header); err != nil {
		return err
	}
	if err := fs.V.Touch(headerDir(j.Dir)); err != nil {
		logf.Warnw("touch after staged upload failed", "dir", j.Dir, "err", err)
	}
	_, err := fs.V.DB.Exec("SET_FILE_SYNCED", sqlx.Args{
		"vault": fs.V.ID, "id": core.FormatID(j.FileID), "copyTime": core.Now().UnixMilli(),
	})
	if err != nil {
		return backoff.Permanent(err)
	}
	if j.DeleteSrc && j.Src != "" {
		if err := os.Remove(j.Src); err != nil {
			logf.Warnw("cannot remove uploaded source", "src", j.Src, "err", err)
		}
	}
	logf.Debugw("staged upload complete", "file", core.FormatID(j.FileID))
	return nil
}

// download completes an asynchronous get.
func (q *asyncQueue) download(j job) error {
	fs := q.fs
	body, err := storage.ReadFile(fs.ctx(), fs.V.Store, j.BodyName)
	if err != nil {
		return err
	}
	key, err := fs.V.KeyForEpoch(vault.GroupName(j.Group), j.Epoch)
	if err != nil {
		return backoff.Permanent(err)
	}
	data, err := security.Open(body, key)
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := os.WriteFile(j.Dest, data, 0o644); err != nil {
		return err
	}
	if err := fs.setLocalCopy(FileID(j.FileID), j.Dest, core.Now().UnixMilli()); err != nil {
		return backoff.Permanent(err)
	}
	logf.Debugw("staged download complete", "file", core.FormatID(j.FileID), "dest", j.Dest)
	return nil
}

// recordFailure surfaces a dropped transfer on the entry attributes,
// where a later Stat or List can report it.
func (q *asyncQueue) recordFailure(j job, cause error) {
	fs := q.fs
	rows, err := fs.V.DB.Query("GET_FILE_BY_ID", sqlx.Args{"vault": fs.V.ID, "id": core.FormatID(j.FileID)})
	if err != nil {
		return
	}
	if !rows.Next() {
		rows.Close()
		return
	}
	f, err := scanFile(rows.Scan)
	rows.Close()
	if err != nil {
		return
	}
	if f.Attributes == nil {
		f.Attributes = map[string]any{}
	}
	f.Attributes["syncError"] = cause.Error()
	attrs, err := json.Marshal(f.Attributes)
	if err != nil {
		return
	}
	_, _ = fs.V.DB.Exec("SET_FILE_ATTRIBUTES", sqlx.Args{
		"vault": fs.V.ID, "id": f.ID.String(), "attributes": string(attrs),
	})
}
