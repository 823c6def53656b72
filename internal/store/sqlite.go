package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/model"
)

// SQLiteStore implements Store using SQLite. Collections are partitions of
// one entries table; write transactions take the database write lock up
// front so concurrent processes serialize instead of failing mid-upgrade.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock clock.Clock
	ids   *idSource
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=synchronous(full)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", classify(err))
	}
	// One connection per process; other processes serialize on the file lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:    db,
		path:  dbPath,
		clock: o.clock,
		ids:   newIDSource(),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", classify(err))
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name    TEXT PRIMARY KEY,
		created TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		created    TEXT NOT NULL,
		updated    TEXT NOT NULL,
		fields     TEXT NOT NULL,
		UNIQUE (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries(collection, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// classify maps SQLite corruption codes onto ErrCorrupt.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_CORRUPT, sqlite3lib.SQLITE_NOTADB:
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "file is not a database") || strings.Contains(msg, "malformed") {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, c.created, COUNT(e.seq)
		FROM collections c LEFT JOIN entries e ON e.collection = c.name
		GROUP BY c.name, c.created
		ORDER BY c.name`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []CollectionInfo{}
	for rows.Next() {
		var info CollectionInfo
		var created string
		if err := rows.Scan(&info.Name, &created, &info.Count); err != nil {
			return nil, classify(err)
		}
		if info.Created, err = parseStamp(info.Name, "", created); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, classify(rows.Err())
}

func (s *SQLiteStore) List(ctx context.Context, collection string) ([]model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created, updated, fields FROM entries WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(collection, rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, classify(rows.Err())
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	e, err := getEntry(ctx, s.db, collection, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, notFound(collection, id)
	}
	return e, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection string, fields map[string]any) (*model.Entry, error) {
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

func (s *SQLiteStore) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (*model.Entry, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, invalid("id is required")
	}
	return s.write(ctx, collection, id, fn)
}

func (s *SQLiteStore) write(ctx context.Context, collection, id string, fn MutateFunc) (*model.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	cur, err := getEntry(ctx, tx, collection, id)
	if err != nil {
		return nil, err
	}
	fields, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return cur, nil
	}

	now := s.clock.Now()
	e, raw, err := buildEntry(collection, id, cur, fields, now)
	if err != nil {
		return nil, err
	}

	if cur == nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO collections (name, created) VALUES (?, ?)`,
			collection, formatStamp(now)); err != nil {
			return nil, fmt.Errorf("register collection: %w", classify(err))
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (collection, id, created, updated, fields) VALUES (?, ?, ?, ?, ?)`,
			collection, id, formatStamp(e.Created), formatStamp(e.Updated), string(raw)); err != nil {
			return nil, fmt.Errorf("insert entry: %w", classify(err))
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET updated = ?, fields = ? WHERE collection = ? AND id = ?`,
			formatStamp(e.Updated), string(raw), collection, id); err != nil {
			return nil, fmt.Errorf("update entry: %w", classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return e, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE collection = ? AND id = ?`, collection, id)
	return classify(err)
}

func (s *SQLiteStore) Search(ctx context.Context, collection, query string) ([]model.Entry, error) {
	entries, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return filterEntries(entries, query), nil
}

func (s *SQLiteStore) Log(ctx context.Context, action string, details map[string]any) (*model.Entry, error) {
	return s.Set(ctx, ActivityCollection, activityFields(action, details, s.clock.Now()))
}

func (s *SQLiteStore) Import(ctx context.Context, entries []model.Entry) (int, error) {
	if err := validateImport(entries); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(err)
	}
	defer tx.Rollback()

	now := formatStamp(s.clock.Now())
	for _, e := range entries {
		raw, err := encodeImported(e)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO collections (name, created) VALUES (?, ?)`, e.Collection, now); err != nil {
			return 0, classify(err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (collection, id, created, updated, fields) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				updated = excluded.updated, fields = excluded.fields`,
			e.Collection, e.ID, formatStamp(e.Created), formatStamp(e.Updated), string(raw))
		if err != nil {
			return 0, fmt.Errorf("import %s/%s: %w", e.Collection, e.ID, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(err)
	}
	return len(entries), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEntry(ctx context.Context, q queryer, collection, id string) (*model.Entry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, created, updated, fields FROM entries WHERE collection = ? AND id = ?`, collection, id)
	e, err := scanEntry(collection, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(collection string, row scanner) (*model.Entry, error) {
	var id, created, updated, fields string
	if err := row.Scan(&id, &created, &updated, &fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, classify(err)
	}

	e := &model.Entry{ID: id, Collection: collection}
	var err error
	if e.Created, err = parseStamp(collection, id, created); err != nil {
		return nil, err
	}
	if e.Updated, err = parseStamp(collection, id, updated); err != nil {
		return nil, err
	}
	if e.Fields, err = decodeFields(collection, id, []byte(fields)); err != nil {
		return nil, err
	}
	return e, nil
}
