package risk

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{5, domain.RiskLow},
		{5.0001, domain.RiskMedium},
		{30, domain.RiskMedium},
		{64.999, domain.RiskMedium},
		{65, domain.RiskHigh},
		{100, domain.RiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %v", tt.score)
	}
}

func TestExtractFactors(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		factors := ExtractFactors(nil)
		require.NotNil(t, factors)
		assert.Empty(t, factors)
	})

	t.Run("WhitespaceOnly", func(t *testing.T) {
		assert.Empty(t, ExtractFactors([]string{"  ", ""}))
	})

	t.Run("SingleNegative", func(t *testing.T) {
		factors := ExtractFactors([]string{"Amount higher than usual"})
		require.Len(t, factors, 1)
		assert.Equal(t, domain.ImpactNegative, factors[0].Impact)
		assert.Equal(t, 1.0, factors[0].Weight)
		assert.Equal(t, "Factor 1", factors[0].Title)
		assert.Equal(t, "Amount higher than usual", factors[0].Description)
	})

	t.Run("PositiveThenNegative", func(t *testing.T) {
		factors := ExtractFactors([]string{"Known recipient", "Unusual amount"})
		require.Len(t, factors, 2)
		assert.Equal(t, 0.5, factors[0].Weight)
		assert.Equal(t, 0.5, factors[1].Weight)
		assert.Equal(t, domain.ImpactPositive, factors[0].Impact)
		assert.Equal(t, domain.ImpactNegative, factors[1].Impact)
		assert.Equal(t, "Factor 2", factors[1].Title)
	})

	t.Run("BlankLinesKeepOrder", func(t *testing.T) {
		factors := ExtractFactors([]string{"", "Device seen before", "   ", "  Flagged merchant  "})
		require.Len(t, factors, 2)
		assert.Equal(t, domain.ImpactNeutral, factors[0].Impact)
		assert.Equal(t, "Flagged merchant", factors[1].Description)
		assert.Equal(t, "Factor 2", factors[1].Title)
	})

	t.Run("LowRiskIsNegative", func(t *testing.T) {
		factors := ExtractFactors([]string{"Low risk destination"})
		require.Len(t, factors, 1)
		assert.Equal(t, domain.ImpactNegative, factors[0].Impact)
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		factors := ExtractFactors([]string{"WITHIN NORMAL RANGE", "ANOMALY in timing"})
		require.Len(t, factors, 2)
		assert.Equal(t, domain.ImpactPositive, factors[0].Impact)
		assert.Equal(t, domain.ImpactNegative, factors[1].Impact)
	})
}

type fixedClassifier domain.Impact

func (f fixedClassifier) Classify(string) domain.Impact { return domain.Impact(f) }

func TestExtractorCustomClassifier(t *testing.T) {
	e := NewExtractor(fixedClassifier(domain.ImpactPositive))
	factors := e.Extract([]string{"Suspicious", "Unusual"})
	require.Len(t, factors, 2)
	for _, f := range factors {
		assert.Equal(t, domain.ImpactPositive, f.Impact)
	}
}

func TestExpressionClassifier(t *testing.T) {
	rules := []ImpactRule{
		{ID: "low-risk", Expression: `line.contains("low risk")`, Impact: domain.ImpactPositive},
		{ID: "velocity", Expression: `line.startsWith("velocity")`, Impact: domain.ImpactNegative},
	}

	c, err := NewExpressionClassifier(rules, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RulesCount())

	t.Run("FirstMatchWins", func(t *testing.T) {
		assert.Equal(t, domain.ImpactPositive, c.Classify("Low risk destination"))
	})

	t.Run("SecondRule", func(t *testing.T) {
		assert.Equal(t, domain.ImpactNegative, c.Classify("Velocity spike on account"))
	})

	t.Run("FallsBackToKeywords", func(t *testing.T) {
		assert.Equal(t, domain.ImpactPositive, c.Classify("Established counterparty"))
		assert.Equal(t, domain.ImpactNeutral, c.Classify("Merchant in retail sector"))
	})

	t.Run("NonBoolRejected", func(t *testing.T) {
		_, err := NewExpressionClassifier([]ImpactRule{
			{ID: "bad", Expression: `size(line)`, Impact: domain.ImpactNegative},
		}, nil)
		assert.Error(t, err)
	})

	t.Run("CompileErrorRejected", func(t *testing.T) {
		_, err := NewExpressionClassifier([]ImpactRule{
			{ID: "bad", Expression: `line.contains(`, Impact: domain.ImpactNegative},
		}, nil)
		assert.Error(t, err)
	})

	t.Run("UnknownImpactRejected", func(t *testing.T) {
		_, err := NewExpressionClassifier([]ImpactRule{
			{ID: "bad", Expression: `true`, Impact: "severe"},
		}, nil)
		assert.Error(t, err)
	})
}

func TestNewClassifierFromFile(t *testing.T) {
	t.Run("EmptyPathUsesKeywords", func(t *testing.T) {
		c, err := NewClassifierFromFile("")
		require.NoError(t, err)
		assert.IsType(t, &KeywordClassifier{}, c)
	})

	t.Run("LoadsRules", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.json")
		body := `[{"id":"r1","expression":"line.contains(\"low risk\")","impact":"positive"}]`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		c, err := NewClassifierFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, domain.ImpactPositive, c.Classify("low risk corridor"))
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := NewClassifierFromFile(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}

func TestAssemble(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAssembler(nil).WithClock(func() time.Time { return fixed })

	t.Run("HighRisk", func(t *testing.T) {
		got := a.Assemble("tx-1", domain.RawModelResponse{
			FraudProbability: 0.92,
			ExplanationLines: []string{"Suspicious pattern detected"},
		})

		assert.Equal(t, "tx-1-analysis", got.ID)
		assert.Equal(t, "tx-1", got.TransactionID)
		assert.Equal(t, domain.RiskHigh, got.RiskLevel)
		assert.Equal(t, 92.0, got.RiskScore)
		require.Len(t, got.Factors, 1)
		assert.Equal(t, domain.ImpactNegative, got.Factors[0].Impact)
		assert.Equal(t, "Suspicious pattern detected", got.Summary)
		assert.Equal(t, fixed, got.Timestamp)
	})

	t.Run("ClampsAndRounds", func(t *testing.T) {
		assert.Equal(t, 100.0, a.Assemble("tx", domain.RawModelResponse{FraudProbability: 1.7}).RiskScore)
		assert.Equal(t, 0.0, a.Assemble("tx", domain.RawModelResponse{FraudProbability: -0.2}).RiskScore)
		assert.Equal(t, 0.0, a.Assemble("tx", domain.RawModelResponse{FraudProbability: math.NaN()}).RiskScore)
		assert.Equal(t, 12.3, a.Assemble("tx", domain.RawModelResponse{FraudProbability: 0.12344}).RiskScore)
	})

	t.Run("ClassifiesUnroundedScore", func(t *testing.T) {
		// 64.96 rounds to 65.0 for display but stays medium.
		got := a.Assemble("tx", domain.RawModelResponse{FraudProbability: 0.6496})
		assert.Equal(t, 65.0, got.RiskScore)
		assert.Equal(t, domain.RiskMedium, got.RiskLevel)

		// 5.04 rounds to 5.0 for display but is above the low threshold.
		got = a.Assemble("tx", domain.RawModelResponse{FraudProbability: 0.0504})
		assert.Equal(t, 5.0, got.RiskScore)
		assert.Equal(t, domain.RiskMedium, got.RiskLevel)
	})

	t.Run("NoExplanation", func(t *testing.T) {
		got := a.Assemble("tx", domain.RawModelResponse{FraudProbability: 0.01, ExplanationLines: []string{" "}})
		assert.Equal(t, domain.RiskLow, got.RiskLevel)
		assert.Empty(t, got.Factors)
		assert.Equal(t, "", got.Summary)
	})

	t.Run("SummaryJoinsSurvivingLines", func(t *testing.T) {
		got := a.Assemble("tx", domain.RawModelResponse{
			FraudProbability: 0.4,
			ExplanationLines: []string{"Known recipient", "", " Unusual amount "},
		})
		assert.Equal(t, "Known recipient Unusual amount", got.Summary)
		assert.Len(t, got.Factors, 2)
	})
}
