package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	Backend      string           `json:"backend"`
	Path         string           `json:"path"`
	SizeBytes    int64            `json:"size_bytes"`
	TotalEntries int              `json:"total_entries"`
	Collections  []CollectionInfo `json:"collections"`
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	return collectStats(ctx, s, BackendSQLite, s.path)
}

func (s *BoltStore) Stats(ctx context.Context) (*Stats, error) {
	return collectStats(ctx, s, BackendBolt, s.path)
}

func collectStats(ctx context.Context, s Store, backend, path string) (*Stats, error) {
	st := &Stats{Backend: backend, Path: path}
	if info, err := os.Stat(path); err == nil {
		st.SizeBytes = info.Size()
	}

	infos, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}
	st.Collections = infos
	for _, c := range infos {
		st.TotalEntries += c.Count
	}
	return st, nil
}
