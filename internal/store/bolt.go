package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
)

// Each collection is a top-level bucket holding:
//
//	created  -> RFC3339 time the collection was first written
//	entries/ -> id -> boltRecord JSON
//	order/   -> big-endian insertion sequence -> id
var (
	keyCreated    = []byte("created")
	bucketEntries = []byte("entries")
	bucketOrder   = []byte("order")
)

type boltRecord struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Created string          `json:"created"`
	Updated string          `json:"updated"`
	Fields  json.RawMessage `json:"fields"`
}

// BoltStore implements Store on a bbolt file. bbolt holds an exclusive file
// lock while open, so other processes wait up to the open timeout.
type BoltStore struct {
	db    *bbolt.DB
	path  string
	clock clock.Clock
	ids   *idSource
}

// NewBoltStore opens or creates a bbolt database at the given path.
func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	o := buildOptions(opts)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		if errors.Is(err, berrors.ErrInvalid) || errors.Is(err, berrors.ErrChecksum) ||
			errors.Is(err, berrors.ErrVersionMismatch) {
			return nil, fmt.Errorf("open db: %w: %v", ErrCorrupt, err)
		}
		return nil, fmt.Errorf("open db: %w", err)
	}

	return &BoltStore{db: db, path: path, clock: o.clock, ids: newIDSource()}, nil
}

func (s *BoltStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []CollectionInfo{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			info := CollectionInfo{Name: string(name)}
			created, err := parseStamp(info.Name, "", string(b.Get(keyCreated)))
			if err != nil {
				return err
			}
			info.Created = created
			if entries := b.Bucket(bucketEntries); entries != nil {
				entries.ForEach(func(_, _ []byte) error {
					info.Count++
					return nil
				})
			}
			out = append(out, info)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) List(ctx context.Context, collection string) ([]model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := []model.Entry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		order, data := b.Bucket(bucketOrder), b.Bucket(bucketEntries)
		if order == nil || data == nil {
			return corrupt(collection, "", errors.New("missing entries or order bucket"))
		}
		c := order.Cursor()
		for k, id := c.First(); k != nil; k, id = c.Next() {
			raw := data.Get(id)
			if raw == nil {
				return corrupt(collection, string(id), errors.New("order references missing entry"))
			}
			e, _, err := decodeRecord(collection, string(id), raw)
			if err != nil {
				return err
			}
			entries = append(entries, *e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BoltStore) Get(ctx context.Context, collection, id string) (*model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *model.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		e, _, err := lookup(tx, collection, id)
		found = e
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, notFound(collection, id)
	}
	return found, nil
}

func (s *BoltStore) Set(ctx context.Context, collection string, fields map[string]any) (*model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	id, update, err := splitID(fields)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = s.ids.next(s.clock.Now())
	}
	return s.write(ctx, collection, id, func(cur *model.Entry) (map[string]any, error) {
		if cur == nil {
			return mergeFields(nil, update), nil
		}
		return mergeFields(cur.Fields, update), nil
	})
}

func (s *BoltStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (*model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("id is required")
	}
	return s.write(ctx, collection, id, fn)
}

func (s *BoltStore) write(ctx context.Context, collection, id string, fn MutateFunc) (*model.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *model.Entry
	err := s.db.Update(func(tx *bbolt.Tx) error {
		cur, seq, err := lookup(tx, collection, id)
		if err != nil {
			return err
		}
		fields, err := fn(cur)
		if err != nil {
			return err
		}
		if fields == nil {
			result = cur
			return nil
		}

		now := s.clock.Now()
		e, raw, err := buildEntry(collection, id, cur, fields, now)
		if err != nil {
			return err
		}
		b, err := ensureCollection(tx, collection, now)
		if err != nil {
			return err
		}
		if cur == nil {
			if seq, err = b.Bucket(bucketOrder).NextSequence(); err != nil {
				return err
			}
			if err := b.Bucket(bucketOrder).Put(seqKey(seq), []byte(id)); err != nil {
				return err
			}
		}
		if err := putRecord(b, e, seq, raw); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, seq, err := lookup(tx, collection, id)
		if err != nil || seq == 0 {
			return err
		}
		b := tx.Bucket([]byte(collection))
		if err := b.Bucket(bucketOrder).Delete(seqKey(seq)); err != nil {
			return err
		}
		return b.Bucket(bucketEntries).Delete([]byte(id))
	})
}

func (s *BoltStore) Search(ctx context.Context, collection, query string) ([]model.Entry, error) {
	entries, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, query), nil
}

func (s *BoltStore) Log(ctx context.Context, action string, details map[string]any) (*model.Entry, error) {
	return s.Set(ctx, ActivityCollection, activityFields(action, details, s.clock.Now()))
}

func (s *BoltStore) Import(ctx context.Context, entries []model.Entry) (int, error) {
	if err := validateImport(entries); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		now := s.clock.Now()
		for _, e := range entries {
			raw, err := encodeImported(e)
			if err != nil {
				return err
			}
			existing, seq, err := lookup(tx, e.Collection, e.ID)
			if err != nil {
				return err
			}
			b, err := ensureCollection(tx, e.Collection, now)
			if err != nil {
				return err
			}
			if seq == 0 {
				if seq, err = b.Bucket(bucketOrder).NextSequence(); err != nil {
					return err
				}
				if err := b.Bucket(bucketOrder).Put(seqKey(seq), []byte(e.ID)); err != nil {
					return err
				}
			}
			entry := e
			if existing != nil {
				entry.Created = existing.Created
			}
			if err := putRecord(b, &entry, seq, raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// lookup returns the entry and its insertion sequence, or (nil, 0, nil).
func lookup(tx *bbolt.Tx, collection, id string) (*model.Entry, uint64, error) {
	b := tx.Bucket([]byte(collection))
	if b == nil {
		return nil, 0, nil
	}
	data := b.Bucket(bucketEntries)
	if data == nil {
		return nil, 0, corrupt(collection, "", errors.New("missing entries bucket"))
	}
	raw := data.Get([]byte(id))
	if raw == nil {
		return nil, 0, nil
	}
	return decodeRecord(collection, id, raw)
}

func ensureCollection(tx *bbolt.Tx, collection string, now time.Time) (*bbolt.Bucket, error) {
	if b := tx.Bucket([]byte(collection)); b != nil {
		return b, nil
	}
	b, err := tx.CreateBucket([]byte(collection))
	if err != nil {
		return nil, err
	}
	if err := b.Put(keyCreated, []byte(formatStamp(now))); err != nil {
		return nil, err
	}
	if _, err := b.CreateBucket(bucketEntries); err != nil {
		return nil, err
	}
	if _, err := b.CreateBucket(bucketOrder); err != nil {
		return nil, err
	}
	return b, nil
}

func putRecord(b *bbolt.Bucket, e *model.Entry, seq uint64, fields []byte) error {
	rec, err := json.Marshal(boltRecord{
		ID:      e.ID,
		Seq:     seq,
		Created: formatStamp(e.Created),
		Updated: formatStamp(e.Updated),
		Fields:  fields,
	})
	if err != nil {
		return err
	}
	return b.Bucket(bucketEntries).Put([]byte(e.ID), rec)
}

func decodeRecord(collection, id string, raw []byte) (*model.Entry, uint64, error) {
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, 0, corrupt(collection, id, err)
	}
	e := &model.Entry{ID: id, Collection: collection}
	var err error
	if e.Created, err = parseStamp(collection, id, rec.Created); err != nil {
		return nil, 0, err
	}
	if e.Updated, err = parseStamp(collection, id, rec.Updated); err != nil {
		return nil, 0, err
	}
	if e.Fields, err = decodeFields(collection, id, rec.Fields); err != nil {
		return nil, 0, err
	}
	return e, rec.Seq, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
