package withdrawal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/core/idgen"
	"github.com/frahmantamala/crypto-gateway/internal/currency"
	"github.com/frahmantamala/crypto-gateway/internal/processor"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, cfg tenant.Config, rec *withdrawal.Record) (*withdrawal.Record, error)
	Get(ctx context.Context, cfg tenant.Config, withdrawalID string) (*withdrawal.Record, error)
	ListUserWithdrawals(ctx context.Context, cfg tenant.Config, userID, status string, limit, offset int) ([]*withdrawal.Record, int, error)
	UserStats(ctx context.Context, cfg tenant.Config, userID string) (*Stats, error)
}

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

// CreateWithdrawal handles POST /api/v1/withdrawals. The payout address
// is validated with the processor before the payout is submitted.
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateWithdrawal: failed to parse request body", "error", err)
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

	code := strings.ToLower(req.Currency)
	if err := client.ValidatePayoutAddress(r.Context(), req.Address, code); err != nil {
		h.Logger.Error("CreateWithdrawal: address validation failed",
			"user_id", req.UserID, "error", err)
		h.HandleError(w, err)
		return
	}

	payout, err := client.CreatePayout(r.Context(), &processor.CreatePayoutRequest{
		Address:        req.Address,
		Currency:       code,
		Amount:         req.Amount,
		IPNCallbackURL: h.CallbackURL,
	})
	if err != nil {
		h.Logger.Error("CreateWithdrawal: processor payout failed",
			"user_id", req.UserID, "error", err)
		h.HandleError(w, err)
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata[withdrawal.MetadataProcessorID] = payout.ID.String()

	details, _ := currency.Get(code)
	rec := &withdrawal.Record{
		WithdrawalID:      idgen.WithdrawalID(),
		UserID:            req.UserID,
		Amount:            req.Amount,
		Currency:          code,
		WithdrawalAddress: req.Address,
		Network:           details.Network,
		Status:            string(StatusPending),
		OrderDescription:  req.OrderDescription,
		Fee:               payout.Fee,
		EstimatedArrival:  payout.EstimatedArrival,
		Metadata:          metadata,
	}
	if payout.Status != "" {
		rec.Status = string(NormalizeStatus(payout.Status))
	}

	stored, err := h.Service.Create(r.Context(), cfg, rec)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("CreateWithdrawal: withdrawal created",
		"withdrawal_id", stored.WithdrawalID,
		"processor_withdrawal_id", payout.ID.String(),
		"user_id", req.UserID,
		"category", string(category),
		"amount", req.Amount)

	h.WriteJSON(w, http.StatusCreated, toWithdrawalResponse(stored))
}

// GetWithdrawal handles GET /api/v1/withdrawals/{withdrawalID}?category=
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID := chi.URLParam(r, "withdrawalID")
	cfg, ok := h.resolveCategory(w, r)
	if !ok {
		return
	}

	rec, err := h.Service.Get(r.Context(), cfg, withdrawalID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toWithdrawalResponse(rec))
}

// ListUserWithdrawals handles GET /api/v1/users/{userID}/withdrawals
func (h *Handler) ListUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cfg, ok := h.resolveCategory(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	status := r.URL.Query().Get("status")

	records, total, err := h.Service.ListUserWithdrawals(r.Context(), cfg, userID, status, limit, offset)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	withdrawals := make([]WithdrawalResponse, 0, len(records))
	for _, rec := range records {
		withdrawals = append(withdrawals, toWithdrawalResponse(rec))
	}

	h.WriteJSON(w, http.StatusOK, ListWithdrawalsResponse{
		Withdrawals: withdrawals,
		Pagination: Pagination{
			Total:  total,
			Limit:  limit,
			Offset: offset,
		},
	})
}

// UserStats handles GET /api/v1/users/{userID}/withdrawals/stats
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
