package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeWithdrawalCompleted = "withdrawal.completed"
	EventTypeWithdrawalFailed    = "withdrawal.failed"
)

// WithdrawalCompletedEvent signals that the payout left the processor.
// The balance debit hook subscribes to this.
type WithdrawalCompletedEvent struct {
	BaseEvent
	WithdrawalID string  `json:"withdrawal_id"`
	Category     string  `json:"category"`
	UserID       string  `json:"user_id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	TxHash       string  `json:"tx_hash"`
}

func NewWithdrawalCompletedEvent(withdrawalID, category, userID string, amount float64, currency, txHash string) *WithdrawalCompletedEvent {
	return &WithdrawalCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeWithdrawalCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"withdrawal_id": withdrawalID,
				"category":      category,
				"user_id":       userID,
				"amount":        amount,
				"currency":      currency,
				"tx_hash":       txHash,
			},
		},
		WithdrawalID: withdrawalID,
		Category:     category,
		UserID:       userID,
		Amount:       amount,
		Currency:     currency,
		TxHash:       txHash,
	}
}

// WithdrawalFailedEvent signals a failed payout; the balance unlock hook
// subscribes to this.
type WithdrawalFailedEvent struct {
	BaseEvent
	WithdrawalID  string  `json:"withdrawal_id"`
	Category      string  `json:"category"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	FailureStatus string  `json:"failure_status"`
}

func NewWithdrawalFailedEvent(withdrawalID, category, userID string, amount float64, currency, failureStatus string) *WithdrawalFailedEvent {
	return &WithdrawalFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeWithdrawalFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"withdrawal_id":  withdrawalID,
				"category":       category,
				"user_id":        userID,
				"amount":         amount,
				"currency":       currency,
				"failure_status": failureStatus,
			},
		},
		WithdrawalID:  withdrawalID,
		Category:      category,
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		FailureStatus: failureStatus,
	}
}
