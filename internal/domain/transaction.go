package domain

import (
	"math"
	"strings"
	"time"
)

// TransactionType is the PaySim transaction category.
type TransactionType string

const (
	TypePayment  TransactionType = "PAYMENT"
	TypeTransfer TransactionType = "TRANSFER"
	TypeCashOut  TransactionType = "CASH_OUT"
	TypeCashIn   TransactionType = "CASH_IN"
	TypeDebit    TransactionType = "DEBIT"
)

// TransactionTypes lists every accepted type in display order.
var TransactionTypes = []TransactionType{
	TypePayment,
	TypeTransfer,
	TypeCashOut,
	TypeCashIn,
	TypeDebit,
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	for _, known := range TransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionStatus is the feed-level status of a transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusProcessed TransactionStatus = "processed"
	StatusFlagged   TransactionStatus = "flagged"
)

// Transaction is a single record of the live feed.
// Records are never edited in place; a new poll supersedes them.
type Transaction struct {
	ID   string          `json:"id"`
	Type TransactionType `json:"type"`

	Amount float64 `json:"amount"`

	// Origin account
	OriginAccount       string  `json:"nameOrig"`
	OriginBalanceBefore float64 `json:"oldBalanceOrig"`
	OriginBalanceAfter  float64 `json:"newBalanceOrig"`

	// Destination account
	DestAccount       string  `json:"nameDest"`
	DestBalanceBefore float64 `json:"oldBalanceDest"`
	DestBalanceAfter  float64 `json:"newBalanceDest"`

	Timestamp time.Time         `json:"timestamp"`
	Status    TransactionStatus `json:"status"`
}

// Flagged reports whether the transaction carries the flagged status.
func (t Transaction) Flagged() bool {
	return t.Status == StatusFlagged
}

// TransactionSubmission is the payload a user submits for scoring.
type TransactionSubmission struct {
	Step                int             `json:"step,omitempty"`
	Type                TransactionType `json:"type"`
	Amount              float64         `json:"amount"`
	OriginAccount       string          `json:"nameOrig"`
	OriginBalanceBefore float64         `json:"oldBalanceOrig"`
	OriginBalanceAfter  float64         `json:"newBalanceOrig"`
	DestAccount         string          `json:"nameDest"`
	DestBalanceBefore   float64         `json:"oldBalanceDest"`
	DestBalanceAfter    float64         `json:"newBalanceDest"`
}

// Validate checks the submission before it leaves the process.
// The returned error is always a *ValidationError.
func (s *TransactionSubmission) Validate() error {
	if s.Step < 0 {
		return &ValidationError{Field: "step", Message: "must be at least 1"}
	}
	if !s.Type.Valid() {
		return &ValidationError{Field: "type", Message: "must be one of PAYMENT, TRANSFER, CASH_OUT, CASH_IN, DEBIT"}
	}
	if math.IsNaN(s.Amount) || math.IsInf(s.Amount, 0) || s.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be greater than 0"}
	}
	if strings.TrimSpace(s.OriginAccount) == "" {
		return &ValidationError{Field: "nameOrig", Message: "is required"}
	}
	if strings.TrimSpace(s.DestAccount) == "" {
		return &ValidationError{Field: "nameDest", Message: "is required"}
	}

	balances := []struct {
		field string
		value float64
	}{
		{"oldBalanceOrig", s.OriginBalanceBefore},
		{"newBalanceOrig", s.OriginBalanceAfter},
		{"oldBalanceDest", s.DestBalanceBefore},
		{"newBalanceDest", s.DestBalanceAfter},
	}
	for _, b := range balances {
		if math.IsNaN(b.value) || math.IsInf(b.value, 0) || b.value < 0 {
			return &ValidationError{Field: b.field, Message: "must be a non-negative number"}
		}
	}

	return nil
}

// ScoringRequest is the scorer's wire format for a submission.
// Field names follow the PaySim column names the model was trained on.
type ScoringRequest struct {
	Step           int     `json:"step"`
	Type           string  `json:"type"`
	Amount         float64 `json:"amount"`
	NameOrig       string  `json:"nameOrig"`
	OldBalanceOrg  float64 `json:"oldbalanceOrg"`
	NewBalanceOrig float64 `json:"newbalanceOrig"`
	NameDest       string  `json:"nameDest"`
	OldBalanceDest float64 `json:"oldbalanceDest"`
	NewBalanceDest float64 `json:"newbalanceDest"`
}

// ToScoringRequest converts a validated submission to the scorer format.
// A zero step defaults to 1.
func (s *TransactionSubmission) ToScoringRequest() ScoringRequest {
	step := s.Step
	if step == 0 {
		step = 1
	}
	return ScoringRequest{
		Step:           step,
		Type:           string(s.Type),
		Amount:         s.Amount,
		NameOrig:       strings.TrimSpace(s.OriginAccount),
		OldBalanceOrg:  s.OriginBalanceBefore,
		NewBalanceOrig: s.OriginBalanceAfter,
		NameDest:       strings.TrimSpace(s.DestAccount),
		OldBalanceDest: s.DestBalanceBefore,
		NewBalanceDest: s.DestBalanceAfter,
	}
}

// SubmissionMessage is the bus payload for a submitted transaction.
// Receipt holds the model output returned when the transaction was
// submitted; when present it is assembled without scoring again.
type SubmissionMessage struct {
	TxID       string                `json:"txId"`
	TraceID    string                `json:"traceId"`
	SessionID  string                `json:"sessionId,omitempty"`
	Submission TransactionSubmission `json:"submission"`
	Receipt    *RawModelResponse     `json:"receipt,omitempty"`
}
