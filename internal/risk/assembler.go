package risk

import (
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// Assembler combines classification and factor extraction into a
// RiskAssessment. It must only be called with a successful scorer response.
type Assembler struct {
	extractor *Extractor
	now       func() time.Time
}

// NewAssembler creates an assembler. A nil extractor uses keywords.
func NewAssembler(extractor *Extractor) *Assembler {
	if extractor == nil {
		extractor = NewExtractor(nil)
	}
	return &Assembler{
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of the assembler using now for timestamps.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	cp := *a
	cp.now = now
	return &cp
}

// Assemble builds a fresh assessment for txID.
func (a *Assembler) Assemble(txID string, raw domain.RawModelResponse) *domain.RiskAssessment {
	score := ScorePercent(raw.FraudProbability)
	kept := SurvivingLines(raw.ExplanationLines)

	return &domain.RiskAssessment{
		ID:            AssessmentID(txID),
		TransactionID: txID,
		RiskLevel:     Classify(score),
		RiskScore:     roundTo(score, 1),
		Summary:       strings.Join(kept, " "),
		Factors:       a.extractor.Extract(kept),
		Timestamp:     a.now(),
	}
}

// AssessmentID derives the assessment identifier from the transaction ID.
func AssessmentID(txID string) string {
	return txID + "-analysis"
}

// ScorePercent converts a probability to a percent clamped into [0,100].
// NaN is treated as 0.
func ScorePercent(probability float64) float64 {
	score := probability * 100
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
