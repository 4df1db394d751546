package withdrawal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

// MetadataProcessorID is the metadata key holding the processor-assigned
// payout id. Outbound creation and inbound notifications use different
// identifier spaces, so inbound lookup queries this secondary index.
const MetadataProcessorID = "processor_withdrawal_id"

// Record is the authoritative stored state of a withdrawal, keyed by the
// internally generated WithdrawalID.
type Record struct {
	WithdrawalID      string                 `json:"withdrawal_id"`
	UserID            string                 `json:"user_id"`
	Amount            float64                `json:"amount"`
	Currency          string                 `json:"currency"`
	WithdrawalAddress string                 `json:"withdrawal_address"`
	Network           string                 `json:"network,omitempty"`
	Status            string                 `json:"status"`
	OrderID           string                 `json:"order_id,omitempty"`
	OrderDescription  string                 `json:"order_description,omitempty"`
	Fee               float64                `json:"fee,omitempty"`
	EstimatedArrival  string                 `json:"estimated_arrival,omitempty"`
	TxHash            string                 `json:"tx_hash,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	WebhookAttempts   int                    `json:"webhook_attempts"`

	SendingAt     *time.Time `json:"sending_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	LastWebhookAt *time.Time `json:"last_webhook_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitempty"`
}

// ProcessorID returns the processor-assigned payout id from metadata, or
// empty when the payout was never registered upstream.
func (r *Record) ProcessorID() string {
	if r.Metadata == nil {
		return ""
	}
	if id, ok := r.Metadata[MetadataProcessorID].(string); ok {
		return id
	}
	return ""
}

func FromDocument(doc docstore.Document) (*Record, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode withdrawal document: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode withdrawal document: %w", err)
	}
	return &rec, nil
}

func (r *Record) Document() (docstore.Document, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode withdrawal record: %w", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode withdrawal record: %w", err)
	}
	delete(doc, "created_at")
	delete(doc, "updated_at")
	return doc, nil
}
