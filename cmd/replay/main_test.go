package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudshield/internal/client"
	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/risk"
)

const sampleCSV = `step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
1,PAYMENT,9839.64,C1231006815,170136.0,160296.36,M1979787155,0.0,0.0,0,0
1,TRANSFER,181.0,C1305486145,181.0,0.0,C553264065,0.0,0.0,1,0
1,CASH_OUT,181.0,C840083671,181.0,0.0,C38997010,21182.0,0.0,1,0
broken,row
`

func TestReadPaySimCSV(t *testing.T) {
	txs, err := readPaySimCSV(strings.NewReader(sampleCSV), 0, false, 1.0)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, domain.TypeTransfer, txs[1].Submission.Type)
	assert.Equal(t, 181.0, txs[1].Submission.Amount)
	assert.Equal(t, "C553264065", txs[1].Submission.DestAccount)
	assert.True(t, txs[1].IsFraud)
	assert.False(t, txs[0].IsFraud)
	assert.Equal(t, 170136.0, txs[0].Submission.OriginBalanceBefore)
}

func TestReadPaySimCSVFilters(t *testing.T) {
	txs, err := readPaySimCSV(strings.NewReader(sampleCSV), 0, true, 1.0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	txs, err = readPaySimCSV(strings.NewReader(sampleCSV), 1, false, 1.0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestReadPaySimCSVMissingColumn(t *testing.T) {
	_, err := readPaySimCSV(strings.NewReader("step,type,amount\n1,PAYMENT,10\n"), 0, false, 1.0)
	assert.ErrorContains(t, err, "missing column")
}

func TestScores(t *testing.T) {
	s := &Scores{}
	fraud := LabelledTransaction{Submission: domain.TransactionSubmission{Amount: 100.10}, IsFraud: true}
	legit := LabelledTransaction{Submission: domain.TransactionSubmission{Amount: 50.05}}

	s.record(fraud, true)
	s.record(fraud, false)
	s.record(legit, true)
	s.record(legit, false)

	assert.Equal(t, 0.5, s.Precision())
	assert.Equal(t, 0.5, s.Recall())
	assert.Equal(t, 0.5, s.F1())
	assert.Equal(t, 0.5, s.Accuracy())
	assert.Equal(t, "300.30", s.totalVolume.StringFixed(2))
	assert.Equal(t, "100.10", s.fraudVolume.StringFixed(2))
}

func TestScoresEmpty(t *testing.T) {
	s := &Scores{}
	assert.Zero(t, s.Precision())
	assert.Zero(t, s.Recall())
	assert.Zero(t, s.F1())
}

func TestReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req domain.ScoringRequest
		json.NewDecoder(r.Body).Decode(&req)

		score := 0.05
		if req.Type == string(domain.TypeTransfer) {
			score = 0.95
		}
		json.NewEncoder(w).Encode(domain.RawModelResponse{
			Predicted:        score > 0.5,
			FraudProbability: score,
			ExplanationLines: []string{"Amount is unusual"},
		})
	}))
	defer srv.Close()

	txs, err := readPaySimCSV(strings.NewReader(sampleCSV), 0, false, 1.0)
	require.NoError(t, err)

	scorer := client.New(domain.UpstreamConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	s := replay(context.Background(), scorer, risk.NewAssembler(nil), txs, 2, false)

	assert.Equal(t, int64(3), s.TotalProcessed)
	assert.Equal(t, int64(0), s.TotalErrors)
	assert.Equal(t, int64(1), s.TruePositives)
	assert.Equal(t, int64(1), s.FalseNegatives)
	assert.Equal(t, int64(1), s.TrueNegatives)
	assert.Equal(t, int64(0), s.FalsePositives)
}
