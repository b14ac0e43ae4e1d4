package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudshield/internal/analysis"
	"github.com/opensource-finance/fraudshield/internal/bus"
	"github.com/opensource-finance/fraudshield/internal/domain"
)

type stubAnalyzer struct {
	probability float64
	lines       []string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error) {
	return &domain.RawModelResponse{
		Predicted:        s.probability >= 0.5,
		FraudProbability: s.probability,
		ExplanationLines: s.lines,
	}, nil
}

type memStore struct {
	mu            sync.Mutex
	assessments   map[string]*domain.RiskAssessment
	notifications []*domain.Notification
}

func newMemStore() *memStore {
	return &memStore{assessments: make(map[string]*domain.RiskAssessment)}
}

func (m *memStore) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.TransactionID] = a
	return nil
}

func (m *memStore) SaveNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) assessment(txID string) *domain.RiskAssessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessments[txID]
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, msg *domain.SubmissionMessage) (*domain.RiskAssessment, error) {
	return nil, errors.New("scorer unavailable")
}

func publishSubmission(t *testing.T, b domain.EventBus, msg domain.SubmissionMessage) {
	t.Helper()
	payload, _ := json.Marshal(msg)
	if err := b.Publish(context.Background(), domain.TopicTransactionSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func submission() domain.TransactionSubmission {
	return domain.TransactionSubmission{
		Type:                domain.TypeTransfer,
		Amount:              9000,
		OriginAccount:       "C100",
		OriginBalanceBefore: 9000,
		DestAccount:         "C200",
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, failingRunner{})

		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicTransactionSubmitted {
			t.Errorf("expected topic %s, got %s", domain.TopicTransactionSubmitted, stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("ProcessSubmission", func(t *testing.T) {
		store := newMemStore()
		pipeline := analysis.NewPipeline(func(string) analysis.Analyzer {
			return &stubAnalyzer{probability: 0.3, lines: []string{"Amount higher than usual"}}
		}, nil, store, eventBus)

		w := NewWorker(eventBus, pipeline)
		w.Start()
		defer w.Stop()

		var created atomic.Bool
		sub, _ := eventBus.Subscribe(context.Background(), domain.TopicAssessmentCreated, func(ctx context.Context, msg *domain.Message) error {
			var a domain.RiskAssessment
			if err := json.Unmarshal(msg.Payload, &a); err == nil && a.TransactionID == "tx-001" {
				created.Store(true)
			}
			return nil
		})
		defer sub.Unsubscribe()

		publishSubmission(t, eventBus, domain.SubmissionMessage{
			TxID:       "tx-001",
			TraceID:    "trace-001",
			Submission: submission(),
		})

		waitFor(t, created.Load)

		a := store.assessment("tx-001")
		if a == nil {
			t.Fatal("expected assessment to be stored")
		}
		if a.RiskLevel != domain.RiskMedium {
			t.Errorf("expected medium risk, got %s", a.RiskLevel)
		}
		if a.RiskScore != 30.0 {
			t.Errorf("expected score 30.0, got %.1f", a.RiskScore)
		}
		if w.GetStats().Processed != 1 {
			t.Errorf("expected 1 processed, got %d", w.GetStats().Processed)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		store := newMemStore()
		pipeline := analysis.NewPipeline(func(string) analysis.Analyzer {
			return &stubAnalyzer{probability: 0.97, lines: []string{"Suspicious drain of origin balance"}}
		}, nil, store, eventBus)

		w := NewWorker(eventBus, pipeline)
		w.Start()
		defer w.Stop()

		var alertReceived atomic.Bool
		sub, _ := eventBus.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})
		defer sub.Unsubscribe()

		publishSubmission(t, eventBus, domain.SubmissionMessage{TxID: "tx-alert", Submission: submission()})

		waitFor(t, alertReceived.Load)

		store.mu.Lock()
		defer store.mu.Unlock()
		if len(store.notifications) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(store.notifications))
		}
		if store.notifications[0].Message != "High-risk transaction tx-alert scored 97.0%" {
			t.Errorf("unexpected message: %s", store.notifications[0].Message)
		}
	})

	t.Run("FailuresCounted", func(t *testing.T) {
		w := NewWorker(eventBus, failingRunner{})
		w.Start()
		defer w.Stop()

		publishSubmission(t, eventBus, domain.SubmissionMessage{TxID: "tx-fail", Submission: submission()})
		eventBus.Publish(context.Background(), domain.TopicTransactionSubmitted, []byte("{not json"))

		waitFor(t, func() bool { return w.GetStats().Failed == 2 })
		if w.GetStats().Processed != 0 {
			t.Errorf("expected 0 processed, got %d", w.GetStats().Processed)
		}
	})
}
