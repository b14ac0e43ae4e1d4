// Package feed derives statistics from transaction feed snapshots and
// republishes snapshots to the cache and event bus.
package feed

import (
	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/shopspring/decimal"
)

// Aggregate reduces a feed snapshot into statistics. It is recomputed
// from scratch on every call so stats always match the snapshot.
func Aggregate(txs []domain.Transaction) domain.FeedStatistics {
	stats := domain.FeedStatistics{
		TotalCount: len(txs),
	}
	if len(txs) == 0 {
		return stats
	}

	volume := decimal.Zero
	for _, tx := range txs {
		volume = volume.Add(decimal.NewFromFloat(tx.Amount))
		if tx.Flagged() {
			stats.FlaggedCount++
		}
	}
	stats.TotalVolume = volume.InexactFloat64()

	// Flagged ratio as a stand-in for average risk.
	ratio := decimal.NewFromInt(int64(stats.FlaggedCount)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(stats.TotalCount)))
	stats.AvgRiskProxyPercent = ratio.Round(1).InexactFloat64()

	// Every flagged transaction is one active alert; no dedup or expiry.
	stats.ActiveAlertCount = stats.FlaggedCount

	return stats
}
