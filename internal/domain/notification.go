package domain

import (
	"time"
)

// Notification is an alert surfaced to dashboard users.
type Notification struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
	Severity RiskLevel `json:"severity"`
	Read     bool      `json:"read"`
}
