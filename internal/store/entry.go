package store

import (
	"encoding/json"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/agent-pulse/internal/model"
)

var collectionName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,63}$`)

// ValidateCollection rejects names that cannot safely name a storage unit.
func ValidateCollection(name string) error {
	if !collectionName.MatchString(name) {
		return invalid("collection name %q", name)
	}
	return nil
}

// ParseFields decodes a JSON object from user input.
func ParseFields(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, invalid("malformed json: %v", err)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("fields must be a JSON object")
	}
	return fields, nil
}

// idSource generates ULIDs. The monotonic entropy keeps ids unique and
// sortable even when many are minted within one millisecond.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (g *idSource) next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// splitID pulls the identity out of user-supplied fields and drops the
// store-managed keys.
func splitID(fields map[string]any) (string, map[string]any, error) {
	clean := make(map[string]any, len(fields))
	var id string
	for k, v := range fields {
		switch k {
		case "id":
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return "", nil, invalid("id must be a string")
			}
			id = s
		case "created", "updated":
		default:
			clean[k] = v
		}
	}
	return id, clean, nil
}

// mergeFields overlays update onto base. A nil value removes the key.
func mergeFields(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// buildEntry stamps a write. created is kept from cur; updated is forced to
// move strictly forward even if the clock has not.
func buildEntry(collection, id string, cur *model.Entry, fields map[string]any, now time.Time) (*model.Entry, []byte, error) {
	now = now.UTC()
	cleaned := make(map[string]any, len(fields))
	for k, v := range fields {
		if v != nil {
			cleaned[k] = v
		}
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil, nil, invalid("fields not encodable: %v", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, nil, invalid("fields not encodable: %v", err)
	}

	e := &model.Entry{
		ID:         id,
		Collection: collection,
		Created:    now,
		Updated:    now,
		Fields:     normalized,
	}
	if cur != nil {
		e.Created = cur.Created
		if !now.After(cur.Updated) {
			e.Updated = cur.Updated.Add(time.Nanosecond)
		}
	}
	return e, raw, nil
}

// decodeFields is the read-side counterpart of buildEntry.
func decodeFields(collection, id string, raw []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, corrupt(collection, id, err)
	}
	if fields == nil {
		return nil, corrupt(collection, id, errNullFields)
	}
	return fields, nil
}

func parseStamp(collection, id, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, corrupt(collection, id, err)
	}
	return t, nil
}

func formatStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type storeError string

func (e storeError) Error() string { return string(e) }

const errNullFields = storeError("fields are not a JSON object")
