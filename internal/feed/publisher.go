package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/metrics"
)

// StatsEvent is the payload of the stats.updated topic.
type StatsEvent struct {
	View  string                `json:"view"`
	Stats domain.FeedStatistics `json:"stats"`
}

// Publisher stores applied snapshots in the cache and announces them on
// the event bus. Either dependency may be nil.
type Publisher struct {
	cache domain.Cache
	bus   domain.EventBus
	ttl   time.Duration
}

// NewPublisher creates a snapshot publisher.
func NewPublisher(cache domain.Cache, bus domain.EventBus, ttl time.Duration) *Publisher {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Publisher{
		cache: cache,
		bus:   bus,
		ttl:   ttl,
	}
}

// Publish handles one applied snapshot.
func (p *Publisher) Publish(ctx context.Context, snap *domain.FeedSnapshot) error {
	metrics.SnapshotTransactions.WithLabelValues(snap.View).Set(float64(len(snap.Transactions)))
	metrics.FlaggedRatio.WithLabelValues(snap.View).Set(snap.Stats.AvgRiskProxyPercent)

	if p.cache != nil {
		if err := p.cache.SetSnapshot(ctx, snap.View, snap, p.ttl); err != nil {
			return fmt.Errorf("failed to cache snapshot: %w", err)
		}
	}

	if p.bus == nil {
		return nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := p.bus.Publish(ctx, domain.TopicFeedUpdated, payload); err != nil {
		return fmt.Errorf("failed to publish feed update: %w", err)
	}

	statsPayload, _ := json.Marshal(StatsEvent{View: snap.View, Stats: snap.Stats})
	if err := p.bus.Publish(ctx, domain.TopicStatsUpdated, statsPayload); err != nil {
		return fmt.Errorf("failed to publish stats update: %w", err)
	}

	slog.Debug("snapshot published",
		"view", snap.View,
		"transactions", len(snap.Transactions),
		"flagged", snap.Stats.FlaggedCount,
	)
	return nil
}
