package transit

import (
	"context"
	"fmt"
	"sync"

	"transit-backend/internal/store"
)

// SettingsCache keeps the live settings table in memory so fare and policy
// lookups never hit the database per request. The settings resource's after
// hooks refresh it, so a stale read lasts at most one failed refresh.
type SettingsCache struct {
	store *store.Store

	mu     sync.RWMutex
	values map[string]string
}

func NewSettingsCache(st *store.Store) *SettingsCache {
	return &SettingsCache{store: st, values: map[string]string{}}
}

// Refresh reloads every live setting.
func (c *SettingsCache) Refresh(ctx context.Context) error {
	rows, err := store.QueryRows(ctx, c.store.DB,
		"SELECT key, value FROM settings WHERE deleted_at IS NULL")
	if err != nil {
		return fmt.Errorf("refresh settings cache: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		value, _ := row["value"].(string)
		if key != "" {
			values[key] = value
		}
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()
	return nil
}

// Get returns the cached value for a key.
func (c *SettingsCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetDefault returns the cached value or a fallback.
func (c *SettingsCache) GetDefault(key, fallback string) string {
	if v, ok := c.Get(key); ok {
		return v
	}
	return fallback
}
