package withdrawal

import (
	"fmt"
	"strings"
	"time"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/common/validation"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/currency"
)

type CreateWithdrawalRequest struct {
	UserID           string                 `json:"user_id"`
	Amount           float64                `json:"amount"`
	Currency         string                 `json:"currency"`
	Category         string                 `json:"category"`
	Address          string                 `json:"address"`
	OrderDescription string                 `json:"order_description,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (r *CreateWithdrawalRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()

	validator.Field("user_id", r.UserID).Required().MaxLength(128)
	validator.Field("amount", r.Amount).Required().PositiveAmount()
	validator.Field("currency", r.Currency).Required()
	validator.Field("category", r.Category).Required()
	validator.Field("address", r.Address).Required().MaxLength(256)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if !currency.IsAllowed(r.Currency) {
		return errors.NewValidationFieldError("currency",
			fmt.Sprintf("currency must be one of: %s", strings.Join(currency.AllowedCodes(), ", ")),
			errors.ErrCodeInvalidCurrency)
	}
	return nil
}

type WithdrawalResponse struct {
	WithdrawalID      string     `json:"withdrawal_id"`
	Status            string     `json:"status"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	WithdrawalAddress string     `json:"withdrawal_address"`
	Network           string     `json:"network,omitempty"`
	Fee               float64    `json:"fee,omitempty"`
	EstimatedArrival  string     `json:"estimated_arrival,omitempty"`
	TxHash            string     `json:"tx_hash,omitempty"`
	WebhookAttempts   int        `json:"webhook_attempts"`
	SendingAt         *time.Time `json:"sending_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	FailedAt          *time.Time `json:"failed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toWithdrawalResponse(rec *withdrawal.Record) WithdrawalResponse {
	return WithdrawalResponse{
		WithdrawalID:      rec.WithdrawalID,
		Status:            rec.Status,
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		WithdrawalAddress: rec.WithdrawalAddress,
		Network:           rec.Network,
		Fee:               rec.Fee,
		EstimatedArrival:  rec.EstimatedArrival,
		TxHash:            rec.TxHash,
		WebhookAttempts:   rec.WebhookAttempts,
		SendingAt:         rec.SendingAt,
		CompletedAt:       rec.CompletedAt,
		FailedAt:          rec.FailedAt,
		CreatedAt:         rec.CreatedAt,
	}
}

type ListWithdrawalsResponse struct {
	Withdrawals []WithdrawalResponse `json:"withdrawals"`
	Pagination  Pagination           `json:"pagination"`
}

type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
