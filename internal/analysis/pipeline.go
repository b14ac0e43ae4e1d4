// Package analysis runs a submitted transaction through the scorer and
// turns the response into a stored, announced risk assessment.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/metrics"
	"github.com/opensource-finance/fraudshield/internal/risk"
)

// Analyzer scores a submission upstream.
type Analyzer interface {
	Analyze(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error)
}

// AnalyzerFor returns the analyzer to use for a session.
// An empty session id means no user session is attached.
type AnalyzerFor func(sessionID string) Analyzer

// Store persists assessments and notifications.
type Store interface {
	SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error
	SaveNotification(ctx context.Context, n *domain.Notification) error
}

// Pipeline scores, assembles, stores and announces assessments.
type Pipeline struct {
	analyzers AnalyzerFor
	assembler *risk.Assembler
	store     Store
	bus       domain.EventBus
	now       func() time.Time
}

// NewPipeline creates a pipeline. bus may be nil.
func NewPipeline(analyzers AnalyzerFor, assembler *risk.Assembler, store Store, bus domain.EventBus) *Pipeline {
	if assembler == nil {
		assembler = risk.NewAssembler(nil)
	}
	return &Pipeline{
		analyzers: analyzers,
		assembler: assembler,
		store:     store,
		bus:       bus,
		now:       time.Now,
	}
}

// Run analyzes one submission. A message carrying a receipt is assembled
// from it; otherwise the scorer is called. A failed scorer call is
// returned as is and nothing is assembled or stored.
func (p *Pipeline) Run(ctx context.Context, msg *domain.SubmissionMessage) (*domain.RiskAssessment, error) {
	if err := msg.Submission.Validate(); err != nil {
		return nil, err
	}
	if msg.TxID == "" {
		msg.TxID = uuid.New().String()
	}

	raw := msg.Receipt
	if raw == nil {
		scored, err := p.analyzers(msg.SessionID).Analyze(ctx, &msg.Submission)
		if err != nil {
			return nil, err
		}
		raw = scored
	}

	assessment := p.assembler.Assemble(msg.TxID, *raw)
	metrics.AssessmentsTotal.WithLabelValues(string(assessment.RiskLevel)).Inc()

	if err := p.store.SaveAssessment(ctx, assessment); err != nil {
		return nil, fmt.Errorf("failed to save assessment: %w", err)
	}

	p.publish(ctx, domain.TopicAssessmentCreated, assessment)

	if assessment.HighRisk() {
		if err := p.alert(ctx, assessment); err != nil {
			slog.Error("failed to record alert",
				"tx_id", msg.TxID,
				"error", err,
			)
		}
	}

	slog.Info("transaction analyzed",
		"tx_id", msg.TxID,
		"trace_id", msg.TraceID,
		"risk_level", assessment.RiskLevel,
		"risk_score", assessment.RiskScore,
		"factors", len(assessment.Factors),
	)
	return assessment, nil
}

// alert stores a notification for a high-risk assessment and announces it.
func (p *Pipeline) alert(ctx context.Context, a *domain.RiskAssessment) error {
	n := &domain.Notification{
		ID:       uuid.New().String(),
		Message:  AlertMessage(a),
		Time:     p.now().UTC(),
		Severity: domain.RiskHigh,
	}
	if err := p.store.SaveNotification(ctx, n); err != nil {
		return err
	}
	p.publish(ctx, domain.TopicAlert, n)
	return nil
}

// AlertMessage is the notification text for a high-risk assessment.
func AlertMessage(a *domain.RiskAssessment) string {
	return fmt.Sprintf("High-risk transaction %s scored %.1f%%", a.TransactionID, a.RiskScore)
}

func (p *Pipeline) publish(ctx context.Context, topic string, v any) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}
