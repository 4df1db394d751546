package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
)

// Resolver locates the tenant category that owns an inbound
// notification by probing each tenant's collection in the fixed
// category order. Notifications carry no category of their own.
type Resolver struct {
	registry   *tenant.Registry
	store      docstore.Store
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewResolver(registry *tenant.Registry, store docstore.Store, retryDelay time.Duration, logger *slog.Logger) *Resolver {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Resolver{
		registry:   registry,
		store:      store,
		retryDelay: retryDelay,
		logger:     logger.With("component", "webhook_resolver"),
	}
}

// PaymentMatch is a resolved payment notification target.
type PaymentMatch struct {
	Config   tenant.Config
	Document docstore.Document
}

// ResolvePayment probes each tenant's payment collection for the id.
// A notification can race the record's first write, so a full miss is
// retried once after a short delay before giving up. Probe failures on
// individual tenants are logged and treated as misses; the notification
// may still resolve elsewhere.
func (r *Resolver) ResolvePayment(ctx context.Context, paymentID string) (*PaymentMatch, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		for _, cfg := range r.registry.All() {
			doc, err := r.store.Get(ctx, cfg.PaymentCollection, paymentID)
			if err != nil {
				r.logger.Warn("payment probe failed",
					"category", string(cfg.Category),
					"payment_id", paymentID,
					"error", err)
				continue
			}
			if doc != nil {
				return &PaymentMatch{Config: cfg, Document: doc}, nil
			}
		}
	}
	return nil, nil
}

// WithdrawalMatch is a resolved withdrawal notification target.
type WithdrawalMatch struct {
	Config       tenant.Config
	WithdrawalID string
	Document     docstore.Document
}

// ResolveWithdrawal probes each tenant's withdrawal collection for a
// record whose stored processor payout id matches. Same retry contract
// as ResolvePayment.
func (r *Resolver) ResolveWithdrawal(ctx context.Context, processorID string) (*WithdrawalMatch, error) {
	predicate := docstore.Predicate{
		Field: "metadata." + withdrawal.MetadataProcessorID,
		Op:    "==",
		Value: processorID,
	}

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		for _, cfg := range r.registry.All() {
			docs, err := r.store.Query(ctx, cfg.WithdrawalCollection, []docstore.Predicate{predicate})
			if err != nil {
				r.logger.Warn("withdrawal probe failed",
					"category", string(cfg.Category),
					"processor_withdrawal_id", processorID,
					"error", err)
				continue
			}
			if len(docs) > 0 {
				rec, err := withdrawal.FromDocument(docs[0])
				if err != nil {
					r.logger.Error("undecodable withdrawal document",
						"category", string(cfg.Category),
						"processor_withdrawal_id", processorID,
						"error", err)
					continue
				}
				return &WithdrawalMatch{
					Config:       cfg,
					WithdrawalID: rec.WithdrawalID,
					Document:     docs[0],
				}, nil
			}
		}
	}
	return nil, nil
}
