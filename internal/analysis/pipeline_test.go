package analysis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudshield/internal/bus"
	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/risk"
)

type fakeAnalyzer struct {
	raw   *domain.RawModelResponse
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error) {
	f.calls++
	return f.raw, f.err
}

type memStore struct {
	mu            sync.Mutex
	assessments   []*domain.RiskAssessment
	notifications []*domain.Notification
}

func (m *memStore) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments = append(m.assessments, a)
	return nil
}

func (m *memStore) SaveNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func submission() domain.TransactionSubmission {
	return domain.TransactionSubmission{
		Type:                domain.TypeCashOut,
		Amount:              5000,
		OriginAccount:       "C1",
		OriginBalanceBefore: 5000,
		DestAccount:         "C2",
	}
}

func collect(t *testing.T, b domain.EventBus, topic string) func() [][]byte {
	t.Helper()
	var mu sync.Mutex
	var got [][]byte
	_, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.Payload)
		return nil
	})
	require.NoError(t, err)
	return func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		return append([][]byte(nil), got...)
	}
}

func TestRun_HighRiskCreatesAlert(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	created := collect(t, eventBus, domain.TopicAssessmentCreated)
	alerts := collect(t, eventBus, domain.TopicAlert)

	analyzer := &fakeAnalyzer{raw: &domain.RawModelResponse{
		Predicted:        true,
		FraudProbability: 0.92,
		ExplanationLines: []string{"Suspicious transfer to new account"},
	}}
	store := &memStore{}
	var gotSession string
	p := NewPipeline(func(sessionID string) Analyzer {
		gotSession = sessionID
		return analyzer
	}, nil, store, eventBus)

	a, err := p.Run(context.Background(), &domain.SubmissionMessage{
		TxID:       "tx-9",
		SessionID:  "sess-1",
		Submission: submission(),
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", gotSession)
	assert.Equal(t, "tx-9-analysis", a.ID)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, 92.0, a.RiskScore)
	require.Len(t, a.Factors, 1)
	assert.Equal(t, domain.ImpactNegative, a.Factors[0].Impact)

	require.Len(t, store.assessments, 1)
	require.Len(t, store.notifications, 1)
	assert.Equal(t, "High-risk transaction tx-9 scored 92.0%", store.notifications[0].Message)
	assert.Equal(t, domain.RiskHigh, store.notifications[0].Severity)

	require.Eventually(t, func() bool { return len(created()) == 1 && len(alerts()) == 1 }, time.Second, 5*time.Millisecond)

	var announced domain.RiskAssessment
	require.NoError(t, json.Unmarshal(created()[0], &announced))
	assert.Equal(t, "tx-9", announced.TransactionID)
}

func TestRun_LowRiskNoAlert(t *testing.T) {
	analyzer := &fakeAnalyzer{raw: &domain.RawModelResponse{FraudProbability: 0.02}}
	store := &memStore{}
	p := NewPipeline(func(string) Analyzer { return analyzer }, risk.NewAssembler(nil), store, nil)

	a, err := p.Run(context.Background(), &domain.SubmissionMessage{Submission: submission()})
	require.NoError(t, err)

	assert.NotEmpty(t, a.TransactionID)
	assert.Equal(t, domain.RiskLow, a.RiskLevel)
	assert.Empty(t, a.Factors)
	assert.Len(t, store.assessments, 1)
	assert.Empty(t, store.notifications)
}

func TestRun_UpstreamFailureAssemblesNothing(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &domain.RequestError{Op: "analyze", StatusCode: 503, Message: "model offline"}}
	store := &memStore{}
	p := NewPipeline(func(string) Analyzer { return analyzer }, nil, store, nil)

	_, err := p.Run(context.Background(), &domain.SubmissionMessage{TxID: "tx-1", Submission: submission()})

	var rerr *domain.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 503, rerr.StatusCode)
	assert.Empty(t, store.assessments)
}

func TestRun_InvalidSubmission(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	p := NewPipeline(func(string) Analyzer { return analyzer }, nil, &memStore{}, nil)

	sub := submission()
	sub.DestAccount = "  "
	_, err := p.Run(context.Background(), &domain.SubmissionMessage{Submission: sub})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nameDest", verr.Field)
	assert.Zero(t, analyzer.calls)
}

func TestRun_ReceiptSkipsScorer(t *testing.T) {
	analyzer := &fakeAnalyzer{raw: &domain.RawModelResponse{FraudProbability: 0.02}}
	store := &memStore{}
	p := NewPipeline(func(string) Analyzer { return analyzer }, nil, store, nil)

	a, err := p.Run(context.Background(), &domain.SubmissionMessage{
		TxID:       "tx-r",
		Submission: submission(),
		Receipt: &domain.RawModelResponse{
			Predicted:        true,
			FraudProbability: 0.97,
			ExplanationLines: []string{"Origin balance drained"},
		},
	})
	require.NoError(t, err)

	assert.Zero(t, analyzer.calls)
	assert.Equal(t, domain.RiskHigh, a.RiskLevel)
	assert.Equal(t, 97.0, a.RiskScore)
	require.Len(t, store.assessments, 1)
	assert.Equal(t, 97.0, store.assessments[0].RiskScore)
	require.Len(t, store.notifications, 1)
	assert.Equal(t, "High-risk transaction tx-r scored 97.0%", store.notifications[0].Message)
}
