// Package risk turns raw scorer output into structured risk assessments.
package risk

import (
	"github.com/opensource-finance/fraudshield/internal/domain"
)

// Risk level thresholds in percent.
const (
	LowThreshold  = 5.0  // scores at or below are low
	HighThreshold = 65.0 // scores at or above are high
)

// Classify maps a score percent to a risk level.
// The caller must clamp the score into [0,100] first.
func Classify(scorePercent float64) domain.RiskLevel {
	switch {
	case scorePercent <= LowThreshold:
		return domain.RiskLow
	case scorePercent < HighThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
