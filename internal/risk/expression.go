package risk

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudshield/internal/domain"
)

// ImpactRule tags lines matching a CEL expression with an impact.
// The expression sees the lowercased line as the string variable `line`.
type ImpactRule struct {
	ID         string        `json:"id"`
	Expression string        `json:"expression"`
	Impact     domain.Impact `json:"impact"`
}

type compiledImpactRule struct {
	rule    ImpactRule
	program cel.Program
}

// ExpressionClassifier evaluates CEL rules in order; the first rule that
// evaluates to true decides the impact. Lines no rule matches go to the
// fallback classifier.
type ExpressionClassifier struct {
	rules    []compiledImpactRule
	fallback ImpactClassifier
}

// NewExpressionClassifier compiles rules. A nil fallback means keywords.
func NewExpressionClassifier(rules []ImpactRule, fallback ImpactClassifier) (*ExpressionClassifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("line", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	if fallback == nil {
		fallback = NewKeywordClassifier()
	}

	compiled := make([]compiledImpactRule, 0, len(rules))
	for _, r := range rules {
		switch r.Impact {
		case domain.ImpactPositive, domain.ImpactNegative, domain.ImpactNeutral:
		default:
			return nil, fmt.Errorf("impact rule %s: unknown impact %q", r.ID, r.Impact)
		}

		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("failed to compile impact rule %s: %w", r.ID, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("impact rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create program for impact rule %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledImpactRule{rule: r, program: program})
	}

	return &ExpressionClassifier{
		rules:    compiled,
		fallback: fallback,
	}, nil
}

// Classify implements ImpactClassifier.
func (c *ExpressionClassifier) Classify(line string) domain.Impact {
	activation := map[string]any{
		"line": strings.ToLower(line),
	}

	for _, r := range c.rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			slog.Debug("impact rule evaluation failed",
				"rule_id", r.rule.ID,
				"error", err,
			)
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return r.rule.Impact
		}
	}

	return c.fallback.Classify(line)
}

// RulesCount returns the number of compiled rules.
func (c *ExpressionClassifier) RulesCount() int {
	return len(c.rules)
}

// LoadImpactRules reads a JSON array of ImpactRule from path.
func LoadImpactRules(path string) ([]ImpactRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read impact rules: %w", err)
	}

	var rules []ImpactRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse impact rules: %w", err)
	}
	return rules, nil
}

// NewClassifierFromFile builds the classifier used by the service: CEL
// rules from path when set, keywords otherwise.
func NewClassifierFromFile(path string) (ImpactClassifier, error) {
	if path == "" {
		return NewKeywordClassifier(), nil
	}

	rules, err := LoadImpactRules(path)
	if err != nil {
		return nil, err
	}
	return NewExpressionClassifier(rules, nil)
}
