// Package store provides schemaless document persistence organized into
// named collections, with SQLite and bbolt implementations.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
)

// Reserved collections.
const (
	ActivityCollection    = "_activity"
	SuppressionCollection = "_suppressions"
	HeartbeatCollection   = "_heartbeat"
	ChecklistCollection   = "_checklist"
	CompletionCollection  = "_completions"
	OutboxCollection      = "_outbox"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// MutateFunc computes the new fields of an entry from its current state.
// current is nil when the entry does not exist. Returning nil fields skips
// the write. The function runs inside the write transaction and must not
// call back into the store.
type MutateFunc func(current *model.Entry) (map[string]any, error)

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Created time.Time `json:"created"`
}

// Store defines the document storage interface. Every mutating call is
// durable when it returns.
type Store interface {
	// Collections lists every collection ever written, by name.
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// List returns all entries of a collection in insertion order. A
	// collection that does not exist yields an empty slice.
	List(ctx context.Context, collection string) ([]model.Entry, error)

	// Get returns one entry or an ErrNotFound error.
	Get(ctx context.Context, collection, id string) (*model.Entry, error)

	// Set upserts. A string "id" field selects the entry to merge into (or
	// the id to create under); without one a new id is generated.
	Set(ctx context.Context, collection string, fields map[string]any) (*model.Entry, error)

	// Mutate performs an atomic read-modify-write of a single entry. The
	// returned fields replace the entry's fields wholesale.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) (*model.Entry, error)

	// Delete removes an entry. Deleting an absent entry is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Search returns entries with at least one field value containing
	// query, case-insensitively. An empty query matches everything.
	Search(ctx context.Context, collection, query string) ([]model.Entry, error)

	// Log appends an activity record.
	Log(ctx context.Context, action string, details map[string]any) (*model.Entry, error)

	// Import restores exported entries verbatim, preserving ids and
	// timestamps. Existing entries with the same id have their fields and
	// updated time overwritten but keep their created time.
	Import(ctx context.Context, entries []model.Entry) (int, error)

	// Stats reports backend and per-collection statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying database.
	Close() error
}

type options struct {
	clock clock.Clock
}

// Option configures a store.
type Option func(*options)

// WithClock sets the time source for created/updated stamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Open opens the backend's database file inside dir.
func Open(backend, dir string, opts ...Option) (Store, error) {
	switch backend {
	case "", BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "state.db"), opts...)
	case BackendBolt:
		return NewBoltStore(filepath.Join(dir, "state.bolt"), opts...)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (use sqlite or bolt)", ErrInvalid, backend)
	}
}
