package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

// Record is the authoritative stored state of a payment. The processor
// assigns PaymentID; the record lives in the owning category's
// collection keyed by that id.
type Record struct {
	PaymentID        string                 `json:"payment_id"`
	UserID           string                 `json:"user_id"`
	Amount           float64                `json:"amount"`
	Currency         string                 `json:"currency"`
	PayAddress       string                 `json:"pay_address,omitempty"`
	PayAmount        float64                `json:"pay_amount,omitempty"`
	PayCurrency      string                 `json:"pay_currency,omitempty"`
	Status           string                 `json:"status"`
	OrderID          string                 `json:"order_id,omitempty"`
	OrderDescription string                 `json:"order_description,omitempty"`
	Network          string                 `json:"network,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	WebhookAttempts  int                    `json:"webhook_attempts"`

	ActuallyPaid    float64 `json:"actually_paid,omitempty"`
	OutcomeAmount   float64 `json:"outcome_amount,omitempty"`
	OutcomeCurrency string  `json:"outcome_currency,omitempty"`
	Fee             float64 `json:"fee,omitempty"`
	ConfirmedAmount float64 `json:"confirmed_amount,omitempty"`
	FinalAmount     float64 `json:"final_amount,omitempty"`

	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	ExpiredAt     *time.Time `json:"expired_at,omitempty"`
	LastWebhookAt *time.Time `json:"last_webhook_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitempty"`
}

// FromDocument decodes a stored document into a Record.
func FromDocument(doc docstore.Document) (*Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode payment document: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode payment document: %w", err)
	}
	return &rec, nil
}

// Document renders the record as store fields. The store manages
// created_at/updated_at itself, so they are stripped.
func (r *Record) Document() (docstore.Document, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode payment record: %w", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode payment record: %w", err)
	}
	delete(doc, "created_at")
	delete(doc, "updated_at")
	return doc, nil
}
