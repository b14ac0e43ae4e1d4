package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// rawCache is the byte-level subset every backend implements.
type rawCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func snapshotKey(view string) string {
	return "feed:" + view
}

func getSnapshot(ctx context.Context, c rawCache, view string) (*domain.FeedSnapshot, error) {
	data, err := c.Get(ctx, snapshotKey(view))
	if err != nil || data == nil {
		return nil, err
	}

	var snap domain.FeedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func setSnapshot(ctx context.Context, c rawCache, view string, snap *domain.FeedSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, snapshotKey(view), data, ttl)
}

// GetSnapshot retrieves the cached snapshot of a view.
func (c *LRUCache) GetSnapshot(ctx context.Context, view string) (*domain.FeedSnapshot, error) {
	return getSnapshot(ctx, c, view)
}

// SetSnapshot caches the snapshot of a view.
func (c *LRUCache) SetSnapshot(ctx context.Context, view string, snap *domain.FeedSnapshot, ttl time.Duration) error {
	return setSnapshot(ctx, c, view, snap, ttl)
}

// GetSnapshot retrieves the cached snapshot of a view.
func (c *RedisCache) GetSnapshot(ctx context.Context, view string) (*domain.FeedSnapshot, error) {
	return getSnapshot(ctx, c, view)
}

// SetSnapshot caches the snapshot of a view.
func (c *RedisCache) SetSnapshot(ctx context.Context, view string, snap *domain.FeedSnapshot, ttl time.Duration) error {
	return setSnapshot(ctx, c, view, snap, ttl)
}

// GetSnapshot reads through L1 and L2.
func (c *TwoPhaseCache) GetSnapshot(ctx context.Context, view string) (*domain.FeedSnapshot, error) {
	return getSnapshot(ctx, c, view)
}

// SetSnapshot writes to both L1 and L2.
func (c *TwoPhaseCache) SetSnapshot(ctx context.Context, view string, snap *domain.FeedSnapshot, ttl time.Duration) error {
	return setSnapshot(ctx, c, view, snap, ttl)
}
