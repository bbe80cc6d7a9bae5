package results

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	runs := []Result{
		{StartedAt: base, Test: "frequencies", Format: "S16_LE", Rate: 48000, Channels: 2, Passed: true, Pages: 48, ElapsedMS: 128},
		{StartedAt: base.Add(time.Minute), Test: "flatline", Format: "S16_LE", Rate: 48000, Channels: 2, Passed: false, Pages: 750, ElapsedMS: 2000},
		{StartedAt: base.Add(2 * time.Minute), Test: "frequencies", Format: "S24_LE", Rate: 32000, Channels: 2, Passed: true, Pages: 52, ElapsedMS: 139},
	}
	for _, r := range runs {
		require.NoError(t, store.Record(r))
	}

	recent, err := store.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	assert.Equal(t, "frequencies", recent[0].Test)
	assert.Equal(t, "S24_LE", recent[0].Format)
	assert.Equal(t, 32000, recent[0].Rate)
	assert.True(t, recent[0].Passed)

	assert.Equal(t, "flatline", recent[1].Test)
	assert.False(t, recent[1].Passed)
	assert.Equal(t, 750, recent[1].Pages)
	assert.Equal(t, 2000, recent[1].ElapsedMS)
	assert.True(t, recent[1].StartedAt.Equal(base.Add(time.Minute)))
}

func TestRecentEmpty(t *testing.T) {
	store := openTestStore(t)

	recent, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(Result{StartedAt: time.Now(), Test: "frequencies", Format: "S32_LE", Rate: 44100, Channels: 2, Passed: true}))
	require.NoError(t, store.Close())

	// Reopening must keep existing rows.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	recent, err := store.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
