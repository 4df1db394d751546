package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/core/idgen"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/processor"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, cfg tenant.Config, rec *payment.Record) (*payment.Record, error)
	Get(ctx context.Context, cfg tenant.Config, paymentID string) (*payment.Record, error)
	ApplyDelta(ctx context.Context, cfg tenant.Config, paymentID string, delta docstore.Document) (*payment.Record, error)
	ListUserPayments(ctx context.Context, cfg tenant.Config, userID, status string, limit, offset int) ([]*payment.Record, int, error)
	UserStats(ctx context.Context, cfg tenant.Config, userID string) (*Stats, error)
}

// ProcessorProvider hands out the outbound client for a tenant.
type ProcessorProvider interface {
	For(category tenant.Category) (processor.API, error)
}

type Handler struct {
	transport.BaseHandler
	Service     ServiceAPI
	Registry    *tenant.Registry
	Processors  ProcessorProvider
	CallbackURL string
	Logger      *slog.Logger
}

func NewHandler(service ServiceAPI, registry *tenant.Registry, processors ProcessorProvider, callbackURL string, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.BaseHandler{Logger: logger},
		Service:     service,
		Registry:    registry,
		Processors:  processors,
		CallbackURL: callbackURL,
		Logger:      logger,
	}
}

// CreateDeposit handles POST /api/v1/payments
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateDeposit: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	category, err := tenant.ParseCategory(req.Category)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	cfg, err := h.Registry.Resolve(category)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	client, err := h.Processors.For(category)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	orderID := idgen.OrderID(req.UserID)
	info, err := client.CreatePayment(r.Context(), &processor.CreatePaymentRequest{
		PriceAmount:      req.Amount,
		PriceCurrency:    "usd",
		PayCurrency:      strings.ToLower(req.Currency),
		IPNCallbackURL:   h.CallbackURL,
		OrderID:          orderID,
		OrderDescription: req.OrderDescription,
	})
	if err != nil {
		h.Logger.Error("CreateDeposit: processor call failed", "user_id", req.UserID, "error", err)
		h.HandleError(w, err)
		return
	}

	rec := &payment.Record{
		PaymentID:        info.PaymentID.String(),
		UserID:           req.UserID,
		Amount:           req.Amount,
		Currency:         strings.ToLower(req.Currency),
		PayAddress:       info.PayAddress,
		PayAmount:        info.PayAmount,
		PayCurrency:      info.PayCurrency,
		Status:           string(StatusWaiting),
		OrderID:          orderID,
		OrderDescription: req.OrderDescription,
		Network:          info.Network,
		Metadata:         req.Metadata,
	}
	if info.PaymentStatus != "" {
		rec.Status = string(NormalizeStatus(info.PaymentStatus))
	}

	stored, err := h.Service.Create(r.Context(), cfg, rec)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("CreateDeposit: deposit created",
		"payment_id", stored.PaymentID,
		"user_id", req.UserID,
		"category", string(category),
		"amount", req.Amount)

	h.WriteJSON(w, http.StatusCreated, DepositResponse{
		PaymentID:        stored.PaymentID,
		Status:           stored.Status,
		PayAddress:       stored.PayAddress,
		PayAmount:        stored.PayAmount,
		PayCurrency:      stored.PayCurrency,
		PriceAmount:      info.PriceAmount,
		PriceCurrency:    info.PriceCurrency,
		Network:          stored.Network,
		OrderID:          stored.OrderID,
		OrderDescription: stored.OrderDescription,
		CreatedAt:        stored.CreatedAt.Format(time.RFC3339),
	})
}

// GetPayment handles GET /api/v1/payments/{paymentID}?category=&refresh=
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	cfg, ok := h.resolveCategory(w, r)
	if !ok {
		return
	}

	rec, err := h.Service.Get(r.Context(), cfg, paymentID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if r.URL.Query().Get("refresh") == "true" && !Status(rec.Status).Terminal() {
		rec = h.refreshFromProcessor(r.Context(), cfg, rec)
	}

	h.WriteJSON(w, http.StatusOK, toStatusResponse(rec))
}

// refreshFromProcessor polls the processor for the current status and applies
// the resulting delta. A failed poll falls back to the stored record.
func (h *Handler) refreshFromProcessor(ctx context.Context, cfg tenant.Config, rec *payment.Record) *payment.Record {
	client, err := h.Processors.For(cfg.Category)
	if err != nil {
		h.Logger.Warn("GetPayment: no processor client for refresh", "category", string(cfg.Category), "error", err)
		return rec
	}

	info, err := client.PaymentStatus(ctx, rec.PaymentID)
	if err != nil {
		h.Logger.Warn("GetPayment: processor status poll failed", "payment_id", rec.PaymentID, "error", err)
		return rec
	}

	res := Reconcile(rec, &Notification{
		Status:          info.PaymentStatus,
		ActuallyPaid:    info.ActuallyPaid,
		OutcomeAmount:   info.OutcomeAmount,
		OutcomeCurrency: info.OutcomeCurrency,
	}, time.Now().UTC())
	if res.Delta == nil {
		return rec
	}

	updated, err := h.Service.ApplyDelta(ctx, cfg, rec.PaymentID, res.Delta)
	if err != nil {
		h.Logger.Warn("GetPayment: failed to persist refreshed status", "payment_id", rec.PaymentID, "error", err)
		return rec
	}
	return updated
}

// ListUserPayments handles GET /api/v1/users/{userID}/payments
func (h *Handler) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cfg, ok := h.resolveCategory(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	status := r.URL.Query().Get("status")

	records, total, err := h.Service.ListUserPayments(r.Context(), cfg, userID, status, limit, offset)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	payments := make([]PaymentStatusResponse, 0, len(records))
	for _, rec := range records {
		payments = append(payments, toStatusResponse(rec))
	}

	h.WriteJSON(w, http.StatusOK, ListPaymentsResponse{
		Payments: payments,
		Pagination: Pagination{
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// UserStats handles GET /api/v1/users/{userID}/payments/stats
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cfg, ok := h.resolveCategory(w, r)
	if !ok {
		return
	}

	stats, err := h.Service.UserStats(r.Context(), cfg, userID)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) resolveCategory(w http.ResponseWriter, r *http.Request) (tenant.Config, bool) {
	category, err := tenant.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		h.HandleError(w, err)
		return tenant.Config{}, false
	}
	cfg, err := h.Registry.Resolve(category)
	if err != nil {
		h.HandleError(w, err)
		return tenant.Config{}, false
	}
	return cfg, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
