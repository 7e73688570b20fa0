package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"miqat/internal/storage"
)

func newTestPlaceCache(t *testing.T, max int) (*PlaceNameCache, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemory()
	cache := NewPlaceNameCache(store, max, zap.NewNop())

	// Deterministic, strictly increasing clock so insertion order is total.
	tick := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return cache, store
}

func TestPlaceCacheRoundTrip(t *testing.T) {
	cache, _ := newTestPlaceCache(t, 10)

	_, ok := cache.Get(28.6139, 77.2090)
	assert.False(t, ok)

	cache.Set(28.6139, 77.2090, "New Delhi, Delhi, India")
	name, ok := cache.Get(28.6139, 77.2090)
	require.True(t, ok)
	assert.Equal(t, "New Delhi, Delhi, India", name)

	// Coordinates that agree to three decimals share an entry.
	name, ok = cache.Get(28.61392, 77.20899)
	require.True(t, ok)
	assert.Equal(t, "New Delhi, Delhi, India", name)
}

func TestPlaceCacheEvictsOldestBeyondBound(t *testing.T) {
	cache, _ := newTestPlaceCache(t, 100)

	for i := 0; i < 101; i++ {
		cache.Set(10.0, float64(i), fmt.Sprintf("Place %d", i))
	}

	_, ok := cache.Get(10.0, 0)
	assert.False(t, ok, "the oldest entry is evicted")

	for i := 1; i < 101; i++ {
		name, ok := cache.Get(10.0, float64(i))
		require.True(t, ok, "entry %d must survive", i)
		assert.Equal(t, fmt.Sprintf("Place %d", i), name)
	}
}

func TestPlaceCacheReinsertMovesToNewest(t *testing.T) {
	cache, _ := newTestPlaceCache(t, 3)

	cache.Set(1, 0, "A")
	cache.Set(2, 0, "B")
	cache.Set(3, 0, "C")

	// Rewriting A makes B the oldest; the next insert evicts B, not A.
	cache.Set(1, 0, "A2")
	cache.Set(4, 0, "D")

	name, ok := cache.Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, "A2", name)

	_, ok = cache.Get(2, 0)
	assert.False(t, ok)

	_, ok = cache.Get(3, 0)
	assert.True(t, ok)
	_, ok = cache.Get(4, 0)
	assert.True(t, ok)
}

func TestPlaceCacheClear(t *testing.T) {
	cache, store := newTestPlaceCache(t, 10)

	cache.Set(1, 1, "A")
	cache.Set(2, 2, "B")
	cache.Clear()

	_, ok := cache.Get(1, 1)
	assert.False(t, ok)
	_, ok = cache.Get(2, 2)
	assert.False(t, ok)

	_, err := store.Get(placeIndexKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlaceCachePrunesDanglingIndexEntries(t *testing.T) {
	cache, store := newTestPlaceCache(t, 3)

	cache.Set(1, 0, "A")
	cache.Set(2, 0, "B")

	// Simulate a half-written cache: the value vanished but the index entry
	// survived.
	require.NoError(t, store.Delete(placeKey(1, 0)))

	cache.Set(3, 0, "C")
	cache.Set(4, 0, "D")

	// With A pruned, three live entries fit the bound without evicting B.
	name, ok := cache.Get(2, 0)
	require.True(t, ok)
	assert.Equal(t, "B", name)
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, error) { return "", errors.New("io failure") }
func (brokenStore) Set(string, string) error   { return errors.New("io failure") }
func (brokenStore) Delete(string) error        { return errors.New("io failure") }
func (brokenStore) Close() error               { return nil }

func TestPlaceCacheDegradesOnStorageFailure(t *testing.T) {
	cache := NewPlaceNameCache(brokenStore{}, 10, zap.NewNop())

	// Never panics, never errors out: every lookup is just a miss.
	cache.Set(1, 1, "A")
	_, ok := cache.Get(1, 1)
	assert.False(t, ok)
	cache.Clear()
}
