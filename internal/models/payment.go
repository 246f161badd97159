package models

import (
	"strings"
	"time"
)

// PaymentStatus is the status reported by the payment service.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "CREATED"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentCanceled  PaymentStatus = "CANCELED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Aborted reports an explicit provider-side cancel or failure.
func (s PaymentStatus) Aborted() bool {
	switch PaymentStatus(strings.ToUpper(string(s))) {
	case PaymentCanceled, PaymentFailed:
		return true
	}
	return false
}

// Payment is the backend-owned payment record, read by id while polling.
type Payment struct {
	ID                string        `json:"id"`
	Amount            Money         `json:"amount"`
	Currency          string        `json:"currency"`
	Public            bool          `json:"public"`
	EventID           string        `json:"event_id"`
	Username          string        `json:"username,omitempty"`
	ProviderPaymentID string        `json:"provider_payment_id,omitempty"`
	Status            PaymentStatus `json:"status"`
}

// Confirmed reports whether the provider has confirmed the payment. The
// provider reference is only present once the payment went through.
func (p Payment) Confirmed() bool {
	return strings.TrimSpace(p.ProviderPaymentID) != ""
}

// Donation is the local ledger row of one donation attempt, keyed by the
// tracker that drove it.
type Donation struct {
	ID                string     `json:"id"`
	PaymentID         string     `json:"payment_id"`
	EventID           string     `json:"event_id"`
	Username          string     `json:"username"`
	Amount            Money      `json:"amount"`
	Currency          string     `json:"currency"`
	Public            bool       `json:"public"`
	State             string     `json:"state"`
	Reason            string     `json:"reason,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}
