package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
)

// Service owns withdrawal record persistence. Records are keyed by the
// internally generated withdrawal id; the processor's payout id is kept
// in metadata as a secondary index for inbound lookup.
type Service struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewService(store docstore.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "withdrawal_service"),
	}
}

func (s *Service) Create(ctx context.Context, cfg tenant.Config, rec *withdrawal.Record) (*withdrawal.Record, error) {
	doc, err := rec.Document()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode withdrawal record", err)
	}

	stored, err := s.store.Create(ctx, cfg.WithdrawalCollection, rec.WithdrawalID, doc)
	if err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("withdrawal %s already exists", rec.WithdrawalID),
				apperrors.ErrCodeWithdrawalExists,
			)
		}
		s.logger.Error("failed to create withdrawal record", "withdrawal_id", rec.WithdrawalID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return withdrawal.FromDocument(stored)
}

func (s *Service) Get(ctx context.Context, cfg tenant.Config, withdrawalID string) (*withdrawal.Record, error) {
	doc, err := s.store.Get(ctx, cfg.WithdrawalCollection, withdrawalID)
	if err != nil {
		s.logger.Error("failed to read withdrawal record", "withdrawal_id", withdrawalID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	if doc == nil {
		return nil, apperrors.ErrWithdrawalNotFound
	}
	return withdrawal.FromDocument(doc)
}

// FindByProcessorID resolves a record by the processor-assigned payout
// id stored in metadata. Returns (nil, nil) when no record matches.
func (s *Service) FindByProcessorID(ctx context.Context, cfg tenant.Config, processorID string) (*withdrawal.Record, error) {
	docs, err := s.store.Query(ctx, cfg.WithdrawalCollection, []docstore.Predicate{
		{Field: "metadata." + withdrawal.MetadataProcessorID, Op: "==", Value: processorID},
	})
	if err != nil {
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) > 1 {
		s.logger.Warn("multiple withdrawals share a processor id, using first",
			"processor_withdrawal_id", processorID, "count", len(docs))
	}
	return withdrawal.FromDocument(docs[0])
}

func (s *Service) ApplyDelta(ctx context.Context, cfg tenant.Config, withdrawalID string, delta docstore.Document) (*withdrawal.Record, error) {
	doc, err := s.store.Update(ctx, cfg.WithdrawalCollection, withdrawalID, delta)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.ErrWithdrawalNotFound
		}
		s.logger.Error("failed to update withdrawal record", "withdrawal_id", withdrawalID, "error", err)
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return withdrawal.FromDocument(doc)
}

func (s *Service) IncrementWebhookAttempts(ctx context.Context, cfg tenant.Config, withdrawalID string, now time.Time) error {
	doc, err := s.store.Get(ctx, cfg.WithdrawalCollection, withdrawalID)
	if err != nil {
		return apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	if doc == nil {
		return apperrors.ErrWithdrawalNotFound
	}
	rec, err := withdrawal.FromDocument(doc)
	if err != nil {
		return apperrors.NewInternalError("failed to decode withdrawal record", err)
	}

	_, err = s.store.Update(ctx, cfg.WithdrawalCollection, withdrawalID, docstore.Document{
		"webhook_attempts": rec.WebhookAttempts + 1,
		"last_webhook_at":  now,
	})
	if err != nil {
		return apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}
	return nil
}

func (s *Service) ListUserWithdrawals(ctx context.Context, cfg tenant.Config, userID, status string, limit, offset int) ([]*withdrawal.Record, int, error) {
	predicates := []docstore.Predicate{
		{Field: "user_id", Op: "==", Value: userID},
	}
	if status != "" {
		predicates = append(predicates, docstore.Predicate{
			Field: "status", Op: "==", Value: string(NormalizeStatus(status)),
		})
	}

	docs, err := s.store.Query(ctx, cfg.WithdrawalCollection, predicates)
	if err != nil {
		s.logger.Error("failed to query withdrawals", "user_id", userID, "error", err)
		return nil, 0, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	records := make([]*withdrawal.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := withdrawal.FromDocument(doc)
		if err != nil {
			s.logger.Warn("skipping undecodable withdrawal document", "user_id", userID, "error", err)
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
		return []*withdrawal.Record{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return records[offset:end], total, nil
}

type Stats struct {
	TotalWithdrawals int                        `json:"total_withdrawals"`
	ByStatus         map[string]StatusBreakdown `json:"by_status"`
	CompletionRate   float64                    `json:"completion_rate"`
}

type StatusBreakdown struct {
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

func (s *Service) UserStats(ctx context.Context, cfg tenant.Config, userID string) (*Stats, error) {
	docs, err := s.store.Query(ctx, cfg.WithdrawalCollection, []docstore.Predicate{
		{Field: "user_id", Op: "==", Value: userID},
	})
	if err != nil {
		return nil, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	stats := &Stats{ByStatus: make(map[string]StatusBreakdown)}
	completed := 0
	for _, doc := range docs {
		rec, err := withdrawal.FromDocument(doc)
		if err != nil {
			continue
		}
		stats.TotalWithdrawals++
		status := string(NormalizeStatus(rec.Status))
		breakdown := stats.ByStatus[status]
		breakdown.Count++
		breakdown.TotalAmount += rec.Amount
		stats.ByStatus[status] = breakdown
		if NormalizeStatus(rec.Status) == StatusCompleted {
			completed++
		}
	}
	if stats.TotalWithdrawals > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.TotalWithdrawals) * 100
	}
	return stats, nil
}

// ExpireStale marks withdrawals stuck in pending past the cutoff as
// expired.
func (s *Service) ExpireStale(ctx context.Context, cfg tenant.Config, cutoff time.Time, now time.Time) (int, error) {
	docs, err := s.store.Query(ctx, cfg.WithdrawalCollection, []docstore.Predicate{
		{Field: "status", Op: "==", Value: string(StatusPending)},
		{Field: "created_at", Op: "<", Value: cutoff},
	})
	if err != nil {
		return 0, apperrors.NewUnavailableError("record store unavailable", apperrors.ErrCodeStoreUnavailable, err)
	}

	expired := 0
	for _, doc := range docs {
		rec, err := withdrawal.FromDocument(doc)
		if err != nil {
			continue
		}
		_, err = s.store.Update(ctx, cfg.WithdrawalCollection, rec.WithdrawalID, docstore.Document{
			"status":    string(StatusExpired),
			"failed_at": now,
		})
		if err != nil {
			s.logger.Error("failed to expire withdrawal", "withdrawal_id", rec.WithdrawalID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}
