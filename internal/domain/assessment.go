package domain

import (
	"time"
)

// RiskLevel is the discrete bucket derived from a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Impact describes how a factor moves the risk.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

// RawModelResponse is the scorer's answer for one transaction.
// It is transient and never persisted as-is.
type RawModelResponse struct {
	Predicted        bool     `json:"fraud_prediction"`
	FraudProbability float64  `json:"fraud_score"`
	ExplanationLines []string `json:"explanation"`
}

// RiskFactor is one weighted, impact-tagged explanation unit.
type RiskFactor struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Impact      Impact  `json:"impact"`
	Weight      float64 `json:"weight"`
}

// RiskAssessment is the structured result of one analysis call.
// It references the transaction by ID and is never mutated.
type RiskAssessment struct {
	ID            string       `json:"id"`
	TransactionID string       `json:"transactionId"`
	RiskLevel     RiskLevel    `json:"riskLevel"`
	RiskScore     float64      `json:"riskScore"` // percent, one decimal
	Summary       string       `json:"explanation"`
	Factors       []RiskFactor `json:"factors"`
	Timestamp     time.Time    `json:"timestamp"`
}

// HighRisk reports whether the assessment landed in the high bucket.
func (a *RiskAssessment) HighRisk() bool {
	return a.RiskLevel == RiskHigh
}
