// Package worker scores submitted transactions asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// Runner analyzes one submitted transaction.
type Runner interface {
	Run(ctx context.Context, msg *domain.SubmissionMessage) (*domain.RiskAssessment, error)
}

// Worker consumes transaction.submitted events and runs each through the
// analysis pipeline.
type Worker struct {
	bus    domain.EventBus
	runner Runner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, runner Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to submitted transactions.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionSubmitted, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker started", "topic", domain.TopicTransactionSubmitted)
	return nil
}

// handleMessage scores one submission.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var sub domain.SubmissionMessage
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if sub.TraceID == "" {
		sub.TraceID = msg.ID
	}

	slog.Debug("processing submission",
		"tx_id", sub.TxID,
		"trace_id", sub.TraceID,
	)

	assessment, err := w.runner.Run(ctx, &sub)
	if err != nil {
		w.failed.Add(1)
		slog.Error("submission analysis failed",
			"tx_id", sub.TxID,
			"trace_id", sub.TraceID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Info("submission processed",
		"tx_id", sub.TxID,
		"risk_level", assessment.RiskLevel,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
