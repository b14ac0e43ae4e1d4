// Package live keeps polled snapshots of the transaction feed.
package live

import (
	"context"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// State is the lifecycle state of a Task.
type State string

const (
	StateStreaming State = "streaming"
	StatePaused    State = "paused"
	StateDisposed  State = "disposed"
)

// Task is a lifecycle-controlled feed subscription.
// Polling is one implementation; a push subscription could be another.
type Task interface {
	Start(ctx context.Context)
	Pause()
	Resume()
	Dispose()
	State() State
}

// Source fetches the most recent transactions of the feed.
type Source interface {
	Fetch(ctx context.Context, limit int) ([]domain.Transaction, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, limit int) ([]domain.Transaction, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return f(ctx, limit)
}

// Sink receives every applied snapshot.
type Sink interface {
	Publish(ctx context.Context, snap *domain.FeedSnapshot) error
}
