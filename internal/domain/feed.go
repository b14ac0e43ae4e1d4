package domain

import (
	"time"
)

// FeedStatistics summarizes one snapshot of the feed.
// All fields are derived; nothing here is updated incrementally.
type FeedStatistics struct {
	TotalCount   int     `json:"totalTransactions"`
	FlaggedCount int     `json:"flaggedTransactions"`
	TotalVolume  float64 `json:"totalVolume"`

	// AvgRiskProxyPercent is the flagged ratio as a percentage.
	// It approximates average risk; it is not a mean of per-transaction scores.
	AvgRiskProxyPercent float64 `json:"avgRiskScore"`

	ActiveAlertCount int `json:"recentAlerts"`
}

// FeedSnapshot is what a view shows after a successful poll.
type FeedSnapshot struct {
	View         string         `json:"view"`
	Transactions []Transaction  `json:"transactions"`
	Stats        FeedStatistics `json:"stats"`
	FetchedAt    time.Time      `json:"fetchedAt"`
}
