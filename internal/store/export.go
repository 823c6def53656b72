package store

import (
	"context"
	"encoding/json"

	"github.com/rcliao/agent-pulse/internal/model"
)

// ExportAll returns every entry of one collection, or of all collections
// when collection is empty, grouped by collection name.
func ExportAll(ctx context.Context, s Store, collection string) ([]model.Entry, error) {
	var names []string
	if collection != "" {
		names = []string{collection}
	} else {
		infos, err := s.Collections(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}

	out := []model.Entry{}
	for _, name := range names {
		entries, err := s.List(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

func validateImport(entries []model.Entry) error {
	for i, e := range entries {
		if err := ValidateCollection(e.Collection); err != nil {
			return invalid("entry %d: %v", i, err)
		}
		if e.ID == "" {
			return invalid("entry %d: missing id", i)
		}
		if e.Created.IsZero() || e.Updated.IsZero() {
			return invalid("entry %d: missing timestamps", i)
		}
	}
	return nil
}

func encodeImported(e model.Entry) ([]byte, error) {
	fields := e.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, invalid("%s/%s: %v", e.Collection, e.ID, err)
	}
	return raw, nil
}
