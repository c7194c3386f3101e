package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveAndGet(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	item := HistoryItem{
		Timestamp:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Mode:        "download",
		URL:         "https://speed.example.com/100MB.bin",
		IP:          "203.0.113.9",
		Concurrency: 4,
		Seconds:     30,
		Summary: Summary{
			TotalBytes: 100 << 20,
			MeanBps:    3495253,
			Workers:    4,
			Completed:  4,
		},
	}

	id, err := store.Save(item)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "download", got.Mode)
	require.Equal(t, item.URL, got.URL)
	require.Equal(t, item.Summary, got.Summary)
	require.True(t, item.Timestamp.Equal(got.Timestamp))
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older, err := store.Save(HistoryItem{Timestamp: base, Mode: "download", URL: "https://a.example.com/f"})
	require.NoError(t, err)
	newer, err := store.Save(HistoryItem{Timestamp: base.Add(time.Hour), Mode: "probe", URL: "https://b.example.com/f"})
	require.NoError(t, err)

	items := store.List()
	require.Len(t, items, 2)
	require.Equal(t, newer, items[0].ID)
	require.Equal(t, older, items[1].ID)
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.Get("nope")
	require.Error(t, err)
}

func TestStoreKeepsExplicitID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	id, err := store.Save(HistoryItem{ID: "fixed", Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, "fixed", id)
}
