package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed     = "payment.confirmed"
	EventTypePaymentFinished      = "payment.finished"
	EventTypePaymentFailed        = "payment.failed"
	EventTypePaymentPartiallyPaid = "payment.partially_paid"
)

// PaymentFinishedEvent carries the completion details business hooks need
// to credit the user with the exact amount received.
type PaymentFinishedEvent struct {
	BaseEvent
	PaymentID       string  `json:"payment_id"`
	Category        string  `json:"category"`
	UserID          string  `json:"user_id"`
	OrderID         string  `json:"order_id"`
	OriginalAmount  float64 `json:"original_amount"`
	PaidAmount      float64 `json:"paid_amount"`
	OutcomeAmount   float64 `json:"outcome_amount"`
	OutcomeCurrency string  `json:"outcome_currency"`
	Fee             float64 `json:"fee"`
}

func NewPaymentFinishedEvent(paymentID, category, userID, orderID string, originalAmount, paidAmount, outcomeAmount float64, outcomeCurrency string, fee float64) *PaymentFinishedEvent {
	return &PaymentFinishedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFinished,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":       paymentID,
				"category":         category,
				"user_id":          userID,
				"order_id":         orderID,
				"original_amount":  originalAmount,
				"paid_amount":      paidAmount,
				"outcome_amount":   outcomeAmount,
				"outcome_currency": outcomeCurrency,
				"fee":              fee,
			},
		},
		PaymentID:       paymentID,
		Category:        category,
		UserID:          userID,
		OrderID:         orderID,
		OriginalAmount:  originalAmount,
		PaidAmount:      paidAmount,
		OutcomeAmount:   outcomeAmount,
		OutcomeCurrency: outcomeCurrency,
		Fee:             fee,
	}
}

type PaymentConfirmedEvent struct {
	BaseEvent
	PaymentID       string  `json:"payment_id"`
	Category        string  `json:"category"`
	UserID          string  `json:"user_id"`
	ConfirmedAmount float64 `json:"confirmed_amount"`
}

func NewPaymentConfirmedEvent(paymentID, category, userID string, confirmedAmount float64) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":       paymentID,
				"category":         category,
				"user_id":          userID,
				"confirmed_amount": confirmedAmount,
			},
		},
		PaymentID:       paymentID,
		Category:        category,
		UserID:          userID,
		ConfirmedAmount: confirmedAmount,
	}
}

// PaymentFailedEvent covers failed, expired and refunded payments.
// PartialPaid is non-zero when the user sent something before the
// payment died, which flags the record for manual review.
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     string  `json:"payment_id"`
	Category      string  `json:"category"`
	UserID        string  `json:"user_id"`
	OrderID       string  `json:"order_id"`
	FailureStatus string  `json:"failure_status"`
	Amount        float64 `json:"amount"`
	PartialPaid   float64 `json:"partial_paid"`
}

func NewPaymentFailedEvent(paymentID, category, userID, orderID, failureStatus string, amount, partialPaid float64) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"category":       category,
				"user_id":        userID,
				"order_id":       orderID,
				"failure_status": failureStatus,
				"amount":         amount,
				"partial_paid":   partialPaid,
			},
		},
		PaymentID:     paymentID,
		Category:      category,
		UserID:        userID,
		OrderID:       orderID,
		FailureStatus: failureStatus,
		Amount:        amount,
		PartialPaid:   partialPaid,
	}
}

// PaymentPartiallyPaidEvent carries the shortfall banding signal. The
// band is advisory: accepting, dunning or refunding is the subscriber's
// decision, not this service's.
type PaymentPartiallyPaidEvent struct {
	BaseEvent
	PaymentID      string  `json:"payment_id"`
	Category       string  `json:"category"`
	UserID         string  `json:"user_id"`
	ExpectedAmount float64 `json:"expected_amount"`
	PaidAmount     float64 `json:"paid_amount"`
	Shortfall      float64 `json:"shortfall"`
	PercentagePaid float64 `json:"percentage_paid"`
	Band           string  `json:"band"`
}

func NewPaymentPartiallyPaidEvent(paymentID, category, userID string, expected, paid, shortfall, percentage float64, band string) *PaymentPartiallyPaidEvent {
	return &PaymentPartiallyPaidEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentPartiallyPaid,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":      paymentID,
				"category":        category,
				"user_id":         userID,
				"expected_amount": expected,
				"paid_amount":     paid,
				"shortfall":       shortfall,
				"percentage_paid": percentage,
				"band":            band,
			},
		},
		PaymentID:      paymentID,
		Category:       category,
		UserID:         userID,
		ExpectedAmount: expected,
		PaidAmount:     paid,
		Shortfall:      shortfall,
		PercentagePaid: percentage,
		Band:           band,
	}
}
