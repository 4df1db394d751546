package withdrawal

import (
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
)

// Notification carries the fields of an inbound withdrawal status
// update. Pointer fields distinguish absent from zero.
type Notification struct {
	Status           string
	Fee              *float64
	TxHash           string
	EstimatedArrival string
	ErrorMessage     string
}

type TransitionKind string

const (
	TransitionProgress     TransitionKind = "progress"
	TransitionCompleted    TransitionKind = "completed"
	TransitionFailed       TransitionKind = "failed"
	TransitionAlreadyFinal TransitionKind = "already_final"
)

type ReconcileResult struct {
	Kind      TransitionKind
	NewStatus Status
	Delta     docstore.Document
}

// Reconcile computes the store delta for a payout notification.
// Terminal records absorb everything; otherwise the reported status is
// accepted unconditionally.
func Reconcile(rec *withdrawal.Record, n *Notification, now time.Time) ReconcileResult {
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

	if n.Fee != nil {
		delta["fee"] = *n.Fee
	}
	if n.TxHash != "" {
		delta["tx_hash"] = n.TxHash
	}
	if n.EstimatedArrival != "" {
		delta["estimated_arrival"] = n.EstimatedArrival
	}
	if n.ErrorMessage != "" {
		delta["error_message"] = n.ErrorMessage
	}

	result := ReconcileResult{
		Kind:      TransitionProgress,
		NewStatus: newStatus,
		Delta:     delta,
	}

	switch newStatus {
	case StatusSending:
		delta["sending_at"] = now

	case StatusCompleted:
		delta["completed_at"] = now
		result.Kind = TransitionCompleted

	case StatusFailed, StatusCancelled, StatusExpired:
		delta["failed_at"] = now
		result.Kind = TransitionFailed
	}

	return result
}
