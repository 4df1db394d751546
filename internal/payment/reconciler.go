package payment

import (
	"math"
	"strings"
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

// Notification carries the fields of an inbound payment status update.
// Pointer fields distinguish absent from zero; absent fields never
// overwrite stored values.
type Notification struct {
	Status          string
	PayAmount       *float64
	ActuallyPaid    *float64
	OutcomeAmount   *float64
	Fee             *float64
	PayCurrency     string
	OutcomeCurrency string
	PaymentExtraID  string
}

type TransitionKind string

const (
	TransitionProgress      TransitionKind = "progress"
	TransitionConfirmed     TransitionKind = "confirmed"
	TransitionFinished      TransitionKind = "finished"
	TransitionFailed        TransitionKind = "failed"
	TransitionPartiallyPaid TransitionKind = "partially_paid"
	TransitionAlreadyFinal  TransitionKind = "already_final"
)

type PartialBand string

const (
	BandNearComplete   PartialBand = "near_complete"
	BandContactUser    PartialBand = "contact_user"
	BandConsiderRefund PartialBand = "consider_refund"
)

// PartialDetail quantifies an underpayment for operator follow-up.
type PartialDetail struct {
	Expected       float64
	Paid           float64
	Shortfall      float64
	PercentagePaid float64
	Band           PartialBand
}

// ClassifyPartial bands an underpayment by how much of the expected
// amount arrived: 95% and up is near complete, 50% to 95% warrants
// contacting the user, below 50% a refund should be considered.
func ClassifyPartial(expected, paid float64) PartialDetail {
	detail := PartialDetail{
		Expected: expected,
		Paid:     paid,
	}
	if expected > 0 {
		detail.Shortfall = expected - paid
		detail.PercentagePaid = math.Round(paid/expected*10000) / 100
	}
	switch {
	case detail.PercentagePaid >= 95:
		detail.Band = BandNearComplete
	case detail.PercentagePaid >= 50:
		detail.Band = BandContactUser
	default:
		detail.Band = BandConsiderRefund
	}
	return detail
}

// ReconcileResult is the outcome of applying a notification to a
// stored record. Delta holds only the fields that changed; it is nil
// when the record was already in a terminal state.
type ReconcileResult struct {
	Kind      TransitionKind
	NewStatus Status
	Delta     docstore.Document
	Partial   *PartialDetail
}

// Reconcile computes the store delta for a notification against the
// current record. Reported statuses are accepted unconditionally
// (last write wins) except when the record is already terminal, which
// absorbs everything.
func Reconcile(rec *payment.Record, n *Notification, now time.Time) ReconcileResult {
	current := NormalizeStatus(rec.Status)
	if current.Terminal() {
		return ReconcileResult{
			Kind:      TransitionAlreadyFinal,
			NewStatus: current,
		}
	}

	newStatus := NormalizeStatus(n.Status)
	delta := docstore.Document{
		"status":          string(newStatus),
		"last_webhook_at": now,
	}

	if n.PayAmount != nil {
		delta["pay_amount"] = *n.PayAmount
	}
	if n.ActuallyPaid != nil {
		delta["actually_paid"] = *n.ActuallyPaid
	}
	if n.OutcomeAmount != nil {
		delta["outcome_amount"] = *n.OutcomeAmount
	}
	if n.Fee != nil {
		delta["fee"] = *n.Fee
	}
	if n.PayCurrency != "" {
		delta["pay_currency"] = strings.ToLower(n.PayCurrency)
	}
	if n.OutcomeCurrency != "" {
		delta["outcome_currency"] = strings.ToLower(n.OutcomeCurrency)
	}

	result := ReconcileResult{
		Kind:      TransitionProgress,
		NewStatus: newStatus,
		Delta:     delta,
	}

	switch newStatus {
	case StatusConfirmed, StatusFinished:
		if n.ActuallyPaid != nil {
			delta["confirmed_amount"] = *n.ActuallyPaid
		}
		delta["confirmed_at"] = now
		result.Kind = TransitionConfirmed

		if newStatus == StatusFinished {
			delta["completed_at"] = now
			delta["final_amount"] = finalAmount(rec, n)
			result.Kind = TransitionFinished
		}

	case StatusFailed, StatusExpired, StatusRefunded:
		delta["failed_at"] = now
		if newStatus == StatusExpired {
			delta["expired_at"] = now
		}
		result.Kind = TransitionFailed

	case StatusPartiallyPaid:
		expected := rec.PayAmount
		if n.PayAmount != nil {
			expected = *n.PayAmount
		}
		if expected == 0 {
			expected = rec.Amount
		}
		paid := 0.0
		if n.ActuallyPaid != nil {
			paid = *n.ActuallyPaid
		}
		partial := ClassifyPartial(expected, paid)
		result.Kind = TransitionPartiallyPaid
		result.Partial = &partial
	}

	return result
}

// finalAmount picks the settled amount for a finished payment:
// outcome_amount when reported, else actually_paid, else the expected
// pay_amount.
func finalAmount(rec *payment.Record, n *Notification) float64 {
	if n.OutcomeAmount != nil && *n.OutcomeAmount > 0 {
		return *n.OutcomeAmount
	}
	if n.ActuallyPaid != nil && *n.ActuallyPaid > 0 {
		return *n.ActuallyPaid
	}
	if n.PayAmount != nil && *n.PayAmount > 0 {
		return *n.PayAmount
	}
	return rec.PayAmount
}
