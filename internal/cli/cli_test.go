package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-pulse/internal/store"
)

func TestParseDetails(t *testing.T) {
	assert.Equal(t, map[string]any{}, parseDetails(nil))
	assert.Equal(t, map[string]any{"description": "sent the report"}, parseDetails([]string{"sent", "the", "report"}))
	assert.Equal(t, map[string]any{"count": float64(3)}, parseDetails([]string{`{"count": 3}`}))
	assert.Equal(t, map[string]any{"description": "{not json"}, parseDetails([]string{"{not json"}))
}

func TestParseHours(t *testing.T) {
	d, err := parseHours(nil)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	d, err = parseHours([]string{"1.5"})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"0", "-2", "soon"} {
		_, err := parseHours([]string{bad})
		assert.True(t, errors.Is(err, store.ErrInvalid), bad)
	}
}

func TestReadSignals(t *testing.T) {
	items, err := readSignals("")
	require.NoError(t, err)
	assert.Nil(t, items)

	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"source":"mail","id":"m1","text":"Reply to Ana","urgency":"high"}]`), 0o600))
	items, err = readSignals(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "mail:m1", items[0].Ref())

	require.NoError(t, os.WriteFile(path, []byte(`[{"source":"mail","text":"no id"}]`), 0o600))
	_, err = readSignals(path)
	assert.True(t, errors.Is(err, store.ErrInvalid))

	_, err = readSignals(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
