package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
)

// Service owns payment record persistence. Records live in the owning
// tenant's payment collection keyed by the processor-assigned id.
type Service struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewService(store docstore.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "payment_service"),
	}
}

// Create stores a fresh record. A duplicate payment id is a conflict,
// not an upsert: the processor never reassigns ids.
func (s *Service) Create(ctx context.Context, cfg tenant.Config, rec *payment.Record) (*payment.Record, error) {
	doc, err := rec.Document()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode payment record", err)
	}

	stored, err := s.store.Create(ctx, cfg.PaymentCollection, rec.PaymentID, doc)
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("payment %s already exists", rec.PaymentID),
				apperrors.ErrCodePaymentExists,
			)
		}
		s.logger.Error("failed to create payment record", "payment_id", rec.PaymentID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return payment.FromDocument(stored)
}

// Get loads a record, or ErrPaymentNotFound when it does not exist.
func (s *Service) Get(ctx context.Context, cfg tenant.Config, paymentID string) (*payment.Record, error) {
	doc, err := s.store.Get(ctx, cfg.PaymentCollection, paymentID)
	if err != nil {
		s.logger.Error("failed to read payment record", "payment_id", paymentID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	if doc == nil {
		return nil, apperrors.ErrPaymentNotFound
	}
	return payment.FromDocument(doc)
}

// ApplyDelta merges reconciliation output into the stored record and
// returns the updated state.
func (s *Service) ApplyDelta(ctx context.Context, cfg tenant.Config, paymentID string, delta docstore.Document) (*payment.Record, error) {
	doc, err := s.store.Update(ctx, cfg.PaymentCollection, paymentID, delta)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.ErrPaymentNotFound
		}
		s.logger.Error("failed to update payment record", "payment_id", paymentID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return payment.FromDocument(doc)
}

// IncrementWebhookAttempts bumps the delivery counter. The counter
// moves on every notification, including duplicates and notifications
// for already-final records.
func (s *Service) IncrementWebhookAttempts(ctx context.Context, cfg tenant.Config, paymentID string, now time.Time) error {
	doc, err := s.store.Get(ctx, cfg.PaymentCollection, paymentID)
	if err != nil {
		return apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	if doc == nil {
		return apperrors.ErrPaymentNotFound
	}
	rec, err := payment.FromDocument(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to decode payment record", err)
	}

	_, err = s.store.Update(ctx, cfg.PaymentCollection, paymentID, docstore.Document{
		"webhook_attempts": rec.WebhookAttempts + 1,
		"last_webhook_at":  now,
	})
	if err != nil {
		return apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return nil
}

// ListUserPayments returns one user's records, newest first, with
// offset pagination.
func (s *Service) ListUserPayments(ctx context.Context, cfg tenant.Config, userID, status string, limit, offset int) ([]*payment.Record, int, error) {
	predicates := []docstore.Predicate{
		{Field: "user_id", Op: "==", Value: userID},
	}
	if status != "" {
		predicates = append(predicates, docstore.Predicate{
			Field: "status", Op: "==", Value: string(NormalizeStatus(status)),
		})
	}

	docs, err := s.store.Query(ctx, cfg.PaymentCollection, predicates)
	if err != nil {
		s.logger.Error("failed to query payments", "user_id", userID, "error", err)
		return nil, 0, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	records := make([]*payment.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := payment.FromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable payment document", "user_id", userID, "error", err)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	total := len(records)
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*payment.Record{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return records[offset:end], total, nil
}

// Stats summarizes one user's payment history.
type Stats struct {
	TotalPayments  int                        `json:"total_payments"`
	CompletionRate float64                    `json:"completion_rate"`
	ByStatus       map[string]StatusBreakdown `json:"by_status"`
}

type StatusBreakdown struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

func (s *Service) UserStats(ctx context.Context, cfg tenant.Config, userID string) (*Stats, error) {
	docs, err := s.store.Query(ctx, cfg.PaymentCollection, []docstore.Predicate{
		{Field: "user_id", Op: "==", Value: userID},
	})
	if err != nil {
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	stats := &Stats{ByStatus: make(map[string]StatusBreakdown)}
	finished := 0
	for _, doc := range docs {
		rec, err := payment.FromDocument(doc)
		if err != nil {
			continue
		}
		stats.TotalPayments++
		status := string(NormalizeStatus(rec.Status))
		breakdown := stats.ByStatus[status]
		breakdown.Count++
		breakdown.TotalAmount += rec.Amount
		stats.ByStatus[status] = breakdown
		if NormalizeStatus(rec.Status) == StatusFinished {
			finished++
		}
	}
	if stats.TotalPayments > 0 {
		stats.CompletionRate = float64(finished) / float64(stats.TotalPayments) * 100
	}
	return stats, nil
}

// ExpireStale marks payments that never left waiting within the cutoff
// window as expired. Returns the number of records transitioned.
func (s *Service) ExpireStale(ctx context.Context, cfg tenant.Config, cutoff time.Time, now time.Time) (int, error) {
	docs, err := s.store.Query(ctx, cfg.PaymentCollection, []docstore.Predicate{
		{Field: "status", Op: "==", Value: string(StatusWaiting)},
		{Field: "created_at", Op: "<", Value: cutoff},
	})
	if err != nil {
		return 0, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	expired := 0
	for _, doc := range docs {
		rec, err := payment.FromDocument(doc)
		if err != nil {
			continue
		}
		_, err = s.store.Update(ctx, cfg.PaymentCollection, rec.PaymentID, docstore.Document{
			"status":     string(StatusExpired),
			"expired_at": now,
			"failed_at":  now,
		})
		if err != nil {
			s.logger.Error("failed to expire payment", "payment_id", rec.PaymentID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}
