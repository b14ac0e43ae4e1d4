package risk

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// ImpactClassifier decides the impact of a single explanation line.
type ImpactClassifier interface {
	Classify(line string) domain.Impact
}

// Default keyword vocabularies. Negative terms are checked first, so a
// line containing "low risk" is negative because it also contains "risk".
var (
	NegativeKeywords = []string{"higher", "unusual", "suspicious", "risk", "flagged", "anomaly"}
	PositiveKeywords = []string{"within normal", "known", "established", "consistent", "low risk"}
)

// KeywordClassifier matches case-insensitive substrings against two
// vocabularies, negative first.
type KeywordClassifier struct {
	Negative []string
	Positive []string
}

// NewKeywordClassifier returns a classifier with the default vocabularies.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Negative: NegativeKeywords,
		Positive: PositiveKeywords,
	}
}

// Classify implements ImpactClassifier.
func (k *KeywordClassifier) Classify(line string) domain.Impact {
	lower := strings.ToLower(line)
	if containsAny(lower, k.Negative) {
		return domain.ImpactNegative
	}
	if containsAny(lower, k.Positive) {
		return domain.ImpactPositive
	}
	return domain.ImpactNeutral
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Extractor converts explanation lines into risk factors.
type Extractor struct {
	Classifier ImpactClassifier
}

// NewExtractor creates an extractor. A nil classifier means keywords.
func NewExtractor(c ImpactClassifier) *Extractor {
	if c == nil {
		c = NewKeywordClassifier()
	}
	return &Extractor{Classifier: c}
}

// Extract drops blank lines and emits one factor per surviving line.
// Every factor gets weight 1/N.
// No lines yields an empty, non-nil slice.
func (e *Extractor) Extract(lines []string) []domain.RiskFactor {
	kept := SurvivingLines(lines)
	factors := make([]domain.RiskFactor, 0, len(kept))
	if len(kept) == 0 {
		return factors
	}

	weight := 1.0 / float64(len(kept))
	for i, line := range kept {
		factors = append(factors, domain.RiskFactor{
			Title:       fmt.Sprintf("Factor %d", i+1),
			Description: line,
			Impact:      e.Classifier.Classify(line),
			Weight:      weight,
		})
	}
	return factors
}

// ExtractFactors runs the default keyword extractor.
func ExtractFactors(lines []string) []domain.RiskFactor {
	return NewExtractor(nil).Extract(lines)
}

// SurvivingLines returns the trimmed non-blank lines in order.
func SurvivingLines(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return kept
}
