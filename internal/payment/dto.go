package payment

import (
	"fmt"
	"strings"
	"time"

	errors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/core/common/validation"
	"github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/currency"
)

type CreateDepositRequest struct {
	UserID           string                 `json:"user_id"`
	Amount           float64                `json:"amount"`
	Currency         string                 `json:"currency"`
	Category         string                 `json:"category"`
	OrderDescription string                 `json:"order_description,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (r *CreateDepositRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()

	validator.Field("user_id", r.UserID).Required().MaxLength(128)
	validator.Field("amount", r.Amount).Required().PositiveAmount()
	validator.Field("currency", r.Currency).Required()
	validator.Field("category", r.Category).Required()

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

type DepositResponse struct {
	PaymentID        string  `json:"payment_id"`
	Status           string  `json:"status"`
	PayAddress       string  `json:"pay_address"`
	PayAmount        float64 `json:"pay_amount"`
	PayCurrency      string  `json:"pay_currency"`
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	Network          string  `json:"network,omitempty"`
	OrderID          string  `json:"order_id,omitempty"`
	OrderDescription string  `json:"order_description,omitempty"`
	CreatedAt        string  `json:"created_at,omitempty"`
}

type PaymentStatusResponse struct {
	PaymentID       string     `json:"payment_id"`
	Status          string     `json:"status"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	PayAmount       float64    `json:"pay_amount,omitempty"`
	PayCurrency     string     `json:"pay_currency,omitempty"`
	ActuallyPaid    float64    `json:"actually_paid,omitempty"`
	ConfirmedAmount float64    `json:"confirmed_amount,omitempty"`
	FinalAmount     float64    `json:"final_amount,omitempty"`
	WebhookAttempts int        `json:"webhook_attempts"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toStatusResponse(rec *payment.Record) PaymentStatusResponse {
	return PaymentStatusResponse{
		PaymentID:       rec.PaymentID,
		Status:          rec.Status,
		Amount:          rec.Amount,
		Currency:        rec.Currency,
		PayAmount:       rec.PayAmount,
		PayCurrency:     rec.PayCurrency,
		ActuallyPaid:    rec.ActuallyPaid,
		ConfirmedAmount: rec.ConfirmedAmount,
		FinalAmount:     rec.FinalAmount,
		WebhookAttempts: rec.WebhookAttempts,
		ConfirmedAt:     rec.ConfirmedAt,
		CompletedAt:     rec.CompletedAt,
		FailedAt:        rec.FailedAt,
		CreatedAt:       rec.CreatedAt,
	}
}

type ListPaymentsResponse struct {
	Payments   []PaymentStatusResponse `json:"payments"`
	Pagination Pagination              `json:"pagination"`
}

type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
