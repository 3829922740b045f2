package store

import (
	"context"
	"errors"
	"time"

	"github.com/callowcreation/sfs-api/pkg/cache"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// CachedSettings serves settings reads through an in-process TTL cache.
// Concurrent misses for a channel collapse into one database read. Writes go
// straight through and invalidate the entry.
type CachedSettings struct {
	store *SettingsStore
	cache *cache.Cache
}

func NewCachedSettings(store *SettingsStore) *CachedSettings {
	return &CachedSettings{
		store: store,
		cache: cache.New(cache.Options{
			TTL:        30 * time.Second,
			MaxEntries: 4096,
		}),
	}
}

// Effective returns the channel's settings, falling back to defaults for
// channels that never saved any.
func (c *CachedSettings) Effective(ctx context.Context, channelID string) (models.Settings, error) {
	val, ok, err := c.cache.Get(ctx, channelID, func(ctx context.Context, key string) (interface{}, bool, error) {
		settings, err := c.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			defaults := models.DefaultSettings()
			return defaults, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		return *settings, true, nil
	})
	if err != nil {
		return models.Settings{}, err
	}
	if !ok {
		return models.DefaultSettings(), nil
	}
	return val.(models.Settings), nil
}

// Save persists settings and drops the cached entry.
func (c *CachedSettings) Save(ctx context.Context, channelID string, settings *models.Settings) error {
	if err := c.store.Save(ctx, channelID, settings); err != nil {
		return err
	}
	c.cache.Delete(channelID)
	return nil
}
