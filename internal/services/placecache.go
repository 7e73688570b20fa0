package services

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"miqat/internal/models"
	"miqat/internal/storage"
)

const (
	placeKeyPrefix = "loc_"
	placeIndexKey  = "loc_index"
	// ~111 m grid cells.
	placePrecision = 3
)

type placeIndexEntry struct {
	Key  string `json:"key"`
	Time int64  `json:"time"`
}

// PlaceNameCache maps rounded coordinates to reverse-geocoded place names.
// Bounded by maxEntries with strict oldest-insertion-first eviction. Every
// operation is best-effort: storage failures degrade to misses.
type PlaceNameCache struct {
	store      storage.Store
	maxEntries int
	logger     *zap.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewPlaceNameCache(store storage.Store, maxEntries int, logger *zap.Logger) *PlaceNameCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &PlaceNameCache{
		store:      store,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

func placeKey(lat, lon float64) string {
	return placeKeyPrefix + models.Coordinate{Latitude: lat, Longitude: lon}.Key(placePrecision)
}

// Get returns the cached place name for the coordinate, or "" on miss.
func (c *PlaceNameCache) Get(lat, lon float64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name, err := c.store.Get(placeKey(lat, lon))
	if err != nil {
		return "", false
	}
	return name, true
}

// Set upserts a place name, moves its index entry to newest, and evicts the
// oldest entries once over the bound.
func (c *PlaceNameCache) Set(lat, lon float64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := placeKey(lat, lon)

	// Value first, so the index never references a missing value.
	if err := c.store.Set(key, name); err != nil {
		c.logger.Debug("Place cache write failed", zap.String("key", key), zap.Error(err))
		return
	}

	index := c.loadIndex()

	// Reinsertion moves the key to newest.
	for i, entry := range index {
		if entry.Key == key {
			index = append(index[:i], index[i+1:]...)
			break
		}
	}
	index = append(index, placeIndexEntry{Key: key, Time: c.now().UnixMilli()})

	for len(index) > c.maxEntries {
		oldest := index[0]
		index = index[1:]
		if err := c.store.Delete(oldest.Key); err != nil {
			c.logger.Debug("Place cache eviction failed", zap.String("key", oldest.Key), zap.Error(err))
		}
	}

	raw, err := json.Marshal(index)
	if err != nil {
		return
	}
	if err := c.store.Set(placeIndexKey, string(raw)); err != nil {
		c.logger.Debug("Place cache index write failed", zap.Error(err))
	}
}

// Clear drops every cached place name and the index.
func (c *PlaceNameCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.loadIndex() {
		if err := c.store.Delete(entry.Key); err != nil {
			c.logger.Debug("Place cache clear failed", zap.String("key", entry.Key), zap.Error(err))
		}
	}
	if err := c.store.Delete(placeIndexKey); err != nil {
		c.logger.Debug("Place cache index clear failed", zap.Error(err))
	}
}

// loadIndex reads the access index, dropping entries whose value has gone
// missing so a half-written cache can never serve dangling keys.
func (c *PlaceNameCache) loadIndex() []placeIndexEntry {
	raw, err := c.store.Get(placeIndexKey)
	if err != nil {
		return nil
	}
	var index []placeIndexEntry
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		return nil
	}

	pruned := index[:0]
	for _, entry := range index {
		if _, err := c.store.Get(entry.Key); err != nil {
			continue
		}
		pruned = append(pruned, entry)
	}
	return pruned
}
