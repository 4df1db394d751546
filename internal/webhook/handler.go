package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/core/events"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	paymentsvc "github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/transport"
	withdrawalsvc "github.com/frahmantamala/crypto-gateway/internal/withdrawal"
)

// SignatureHeader carries the processor's hex HMAC-SHA512 of the raw
// request body.
const SignatureHeader = "X-Signature"

const maxBodySize = 1 << 20

type PaymentServiceAPI interface {
	ApplyDelta(ctx context.Context, cfg tenant.Config, paymentID string, delta docstore.Document) (*payment.Record, error)
	IncrementWebhookAttempts(ctx context.Context, cfg tenant.Config, paymentID string, now time.Time) error
}

type WithdrawalServiceAPI interface {
	ApplyDelta(ctx context.Context, cfg tenant.Config, withdrawalID string, delta docstore.Document) (*withdrawal.Record, error)
	IncrementWebhookAttempts(ctx context.Context, cfg tenant.Config, withdrawalID string, now time.Time) error
}

// Handler ingests processor notifications. Every accepted notification
// is acknowledged with 200 even when downstream processing fails;
// anything else makes the processor retry a delivery we cannot use.
// Only an unclassifiable body (400) or a failed signature on a
// production tenant (401) refuses the delivery.
type Handler struct {
	transport.BaseHandler
	Resolver    *Resolver
	Payments    PaymentServiceAPI
	Withdrawals WithdrawalServiceAPI
	Bus         *events.EventBus
	Logger      *slog.Logger

	now func() time.Time
}

func NewHandler(resolver *Resolver, payments PaymentServiceAPI, withdrawals WithdrawalServiceAPI, bus *events.EventBus, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.BaseHandler{Logger: logger},
		Resolver:    resolver,
		Payments:    payments,
		Withdrawals: withdrawals,
		Bus:         bus,
		Logger:      logger,
		now:         time.Now,
	}
}

// HandleIPN handles POST /api/v1/webhook/ipn.
func (h *Handler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.Logger.Error("HandleIPN: failed to read request body", "error", err)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeMalformedNotification))
		return
	}

	payload, perr := ParsePayload(raw)
	if perr != nil {
		h.Logger.Warn("HandleIPN: malformed notification", "error", perr)
		h.HandleError(w, perr)
		return
	}

	kind, id := payload.Classify()
	if kind == KindUnknown {
		h.Logger.Warn("HandleIPN: notification carries no usable identifier")
		h.HandleError(w, errors.NewValidationError(
			"notification carries no payment or withdrawal identifier",
			errors.ErrCodeMissingIdentifier))
		return
	}

	signature := r.Header.Get(SignatureHeader)

	switch kind {
	case KindPayment:
		h.processPayment(r.Context(), w, raw, signature, id, payload)
	case KindWithdrawal:
		h.processWithdrawal(r.Context(), w, raw, signature, id, payload)
	}
}

func (h *Handler) processPayment(ctx context.Context, w http.ResponseWriter, raw []byte, signature, paymentID string, payload *Payload) {
	match, err := h.Resolver.ResolvePayment(ctx, paymentID)
	if err != nil {
		h.ackDegraded(w, "payment", paymentID, err)
		return
	}
	if match == nil {
		h.Logger.Warn("HandleIPN: payment not found in any collection, acknowledging",
			"payment_id", paymentID)
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message": "IPN received",
			"warning": "payment record not found",
		})
		return
	}

	if !h.verify(w, raw, signature, match.Config, "payment", paymentID) {
		return
	}

	now := h.now()
	if err := h.Payments.IncrementWebhookAttempts(ctx, match.Config, paymentID, now); err != nil {
		h.Logger.Error("HandleIPN: failed to increment payment webhook attempts",
			"payment_id", paymentID, "error", err)
	}

	rec, err := payment.FromDocument(match.Document)
	if err != nil {
		h.ackDegraded(w, "payment", paymentID, err)
		return
	}

	status := payload.String("payment_status")
	if status == "" {
		status = payload.String("status")
	}

	n := &paymentsvc.Notification{
		Status:          status,
		PayAmount:       payload.Float("pay_amount"),
		ActuallyPaid:    payload.Float("actually_paid"),
		OutcomeAmount:   payload.Float("outcome_amount"),
		Fee:             payload.Float("fee"),
		PayCurrency:     payload.String("pay_currency"),
		OutcomeCurrency: payload.String("outcome_currency"),
	}

	result := paymentsvc.Reconcile(rec, n, now)
	if result.Kind == paymentsvc.TransitionAlreadyFinal {
		h.Logger.Info("HandleIPN: payment already final",
			"payment_id", paymentID,
			"status", string(result.NewStatus))
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message":    "IPN received",
			"payment_id": paymentID,
			"category":   string(match.Config.Category),
			"status":     "already final",
		})
		return
	}

	updated, err := h.Payments.ApplyDelta(ctx, match.Config, paymentID, result.Delta)
	if err != nil {
		h.ackDegraded(w, "payment", paymentID, err)
		return
	}

	h.publishPaymentEvents(ctx, match.Config, updated, result)

	h.Logger.Info("HandleIPN: payment reconciled",
		"payment_id", paymentID,
		"category", string(match.Config.Category),
		"status", string(result.NewStatus),
		"transition", string(result.Kind))

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "IPN processed",
		"payment_id": paymentID,
		"category":   string(match.Config.Category),
		"status":     string(result.NewStatus),
	})
}

func (h *Handler) processWithdrawal(ctx context.Context, w http.ResponseWriter, raw []byte, signature, processorID string, payload *Payload) {
	match, err := h.Resolver.ResolveWithdrawal(ctx, processorID)
	if err != nil {
		h.ackDegraded(w, "withdrawal", processorID, err)
		return
	}
	if match == nil {
		h.Logger.Warn("HandleIPN: withdrawal not found in any collection, acknowledging",
			"processor_withdrawal_id", processorID)
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message": "IPN received",
			"warning": "withdrawal record not found",
		})
		return
	}

	if !h.verify(w, raw, signature, match.Config, "withdrawal", processorID) {
		return
	}

	now := h.now()
	if err := h.Withdrawals.IncrementWebhookAttempts(ctx, match.Config, match.WithdrawalID, now); err != nil {
		h.Logger.Error("HandleIPN: failed to increment withdrawal webhook attempts",
			"withdrawal_id", match.WithdrawalID, "error", err)
	}

	rec, err := withdrawal.FromDocument(match.Document)
	if err != nil {
		h.ackDegraded(w, "withdrawal", processorID, err)
		return
	}

	n := &withdrawalsvc.Notification{
		Status:           payload.String("status"),
		Fee:              payload.Float("fee"),
		TxHash:           payload.String("hash"),
		EstimatedArrival: payload.String("estimated_arrival"),
		ErrorMessage:     payload.String("error"),
	}

	result := withdrawalsvc.Reconcile(rec, n, now)
	if result.Kind == withdrawalsvc.TransitionAlreadyFinal {
		h.Logger.Info("HandleIPN: withdrawal already final",
			"withdrawal_id", match.WithdrawalID,
			"status", string(result.NewStatus))
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "IPN received",
			"withdrawal_id": match.WithdrawalID,
			"category":      string(match.Config.Category),
			"status":        "already final",
		})
		return
	}

	updated, err := h.Withdrawals.ApplyDelta(ctx, match.Config, match.WithdrawalID, result.Delta)
	if err != nil {
		h.ackDegraded(w, "withdrawal", match.WithdrawalID, err)
		return
	}

	h.publishWithdrawalEvents(ctx, match.Config, updated, result)

	h.Logger.Info("HandleIPN: withdrawal reconciled",
		"withdrawal_id", match.WithdrawalID,
		"category", string(match.Config.Category),
		"status", string(result.NewStatus),
		"transition", string(result.Kind))

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "IPN processed",
		"withdrawal_id": match.WithdrawalID,
		"category":      string(match.Config.Category),
		"status":        string(result.NewStatus),
	})
}

// verify applies the signature policy for the resolved tenant. Returns
// false when the response has already been written.
func (h *Handler) verify(w http.ResponseWriter, raw []byte, signature string, cfg tenant.Config, kind, id string) bool {
	verdict := VerifySignature(raw, signature, cfg.IPNSecret, cfg.Sandbox)
	switch verdict.Kind {
	case VerdictReject:
		h.Logger.Error("HandleIPN: signature rejected",
			"kind", kind, "id", id,
			"category", string(cfg.Category),
			"reason", verdict.Reason)
		if signature == "" {
			h.HandleError(w, errors.ErrMissingSignature)
		} else {
			h.HandleError(w, errors.ErrInvalidSignature)
		}
		return false
	case VerdictAcceptWithWarning:
		h.Logger.Warn("HandleIPN: accepting unauthenticated notification",
			"kind", kind, "id", id,
			"category", string(cfg.Category),
			"reason", verdict.Reason)
	}
	return true
}

// ackDegraded acknowledges a notification whose processing failed. The
// processor's retry schedule would otherwise hammer a store that is
// already struggling.
func (h *Handler) ackDegraded(w http.ResponseWriter, kind, id string, err error) {
	h.Logger.Error("HandleIPN: processing failed, acknowledging anyway",
		"kind", kind, "id", id, "error", err)
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "IPN received but processing failed",
	})
}

func (h *Handler) publishPaymentEvents(ctx context.Context, cfg tenant.Config, rec *payment.Record, result paymentsvc.ReconcileResult) {
	category := string(cfg.Category)

	switch result.Kind {
	case paymentsvc.TransitionConfirmed:
		_ = h.Bus.Publish(ctx, events.NewPaymentConfirmedEvent(
			rec.PaymentID, category, rec.UserID, rec.ConfirmedAmount))

	case paymentsvc.TransitionFinished:
		_ = h.Bus.Publish(ctx, events.NewPaymentConfirmedEvent(
			rec.PaymentID, category, rec.UserID, rec.ConfirmedAmount))
		_ = h.Bus.Publish(ctx, events.NewPaymentFinishedEvent(
			rec.PaymentID, category, rec.UserID, rec.OrderID,
			rec.Amount, rec.ActuallyPaid, rec.FinalAmount,
			rec.OutcomeCurrency, rec.Fee))

	case paymentsvc.TransitionFailed:
		_ = h.Bus.Publish(ctx, events.NewPaymentFailedEvent(
			rec.PaymentID, category, rec.UserID, rec.OrderID,
			string(result.NewStatus), rec.Amount, rec.ActuallyPaid))

	case paymentsvc.TransitionPartiallyPaid:
		p := result.Partial
		_ = h.Bus.Publish(ctx, events.NewPaymentPartiallyPaidEvent(
			rec.PaymentID, category, rec.UserID,
			p.Expected, p.Paid, p.Shortfall, p.PercentagePaid, string(p.Band)))
	}
}

func (h *Handler) publishWithdrawalEvents(ctx context.Context, cfg tenant.Config, rec *withdrawal.Record, result withdrawalsvc.ReconcileResult) {
	category := string(cfg.Category)

	switch result.Kind {
	case withdrawalsvc.TransitionCompleted:
		_ = h.Bus.Publish(ctx, events.NewWithdrawalCompletedEvent(
			rec.WithdrawalID, category, rec.UserID, rec.Amount, rec.Currency, rec.TxHash))

	case withdrawalsvc.TransitionFailed:
		_ = h.Bus.Publish(ctx, events.NewWithdrawalFailedEvent(
			rec.WithdrawalID, category, rec.UserID, rec.Amount, rec.Currency,
			string(result.NewStatus)))
	}
}
