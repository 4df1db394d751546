// Package processor is the outbound REST client for the crypto payment
// processor. Every tenant has its own API key and may point at the
// sandbox environment, so clients are built per tenant category and
// looked up through Clients.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	errors "github.com/frahmantamala/crypto-gateway/internal"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	apiKey     string
	sandbox    bool
	httpClient *http.Client
	logger     *slog.Logger
}

type Config struct {
	BaseURL        string
	SandboxBaseURL string
	APIKey         string
	Sandbox        bool
	Timeout        time.Duration
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if cfg.Sandbox && cfg.SandboxBaseURL != "" {
		base = cfg.SandboxBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		sandbox:    cfg.Sandbox,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) Sandbox() bool {
	return c.sandbox
}

// API is the surface the payment and withdrawal services consume.
type API interface {
	Status(ctx context.Context) error
	Currencies(ctx context.Context) ([]string, error)
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentInfo, error)
	PaymentStatus(ctx context.Context, paymentID string) (*PaymentInfo, error)
	MinimumAmount(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
	EstimatePrice(ctx context.Context, amount float64, fromCurrency, toCurrency string) (*Estimate, error)
	CreatePayout(ctx context.Context, req *CreatePayoutRequest) (*PayoutInfo, error)
	ValidatePayoutAddress(ctx context.Context, address, currency string) error
}

type CreatePaymentRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayCurrency      string  `json:"pay_currency"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	OrderID          string  `json:"order_id,omitempty"`
	OrderDescription string  `json:"order_description,omitempty"`
}

type PaymentInfo struct {
	PaymentID        FlexID   `json:"payment_id"`
	PaymentStatus    string   `json:"payment_status"`
	PayAddress       string   `json:"pay_address"`
	PayAmount        float64  `json:"pay_amount"`
	PayCurrency      string   `json:"pay_currency"`
	PriceAmount      float64  `json:"price_amount"`
	PriceCurrency    string   `json:"price_currency"`
	Network          string   `json:"network,omitempty"`
	OrderID          string   `json:"order_id,omitempty"`
	OrderDescription string   `json:"order_description,omitempty"`
	ActuallyPaid     *float64 `json:"actually_paid,omitempty"`
	OutcomeAmount    *float64 `json:"outcome_amount,omitempty"`
	OutcomeCurrency  string   `json:"outcome_currency,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	ExpirationDate   string   `json:"expiration_estimate_date,omitempty"`
}

type Estimate struct {
	CurrencyFrom    string  `json:"currency_from"`
	CurrencyTo      string  `json:"currency_to"`
	AmountFrom      float64 `json:"amount_from"`
	EstimatedAmount float64 `json:"estimated_amount"`
}

type CreatePayoutRequest struct {
	Address        string  `json:"address"`
	Currency       string  `json:"currency"`
	Amount         float64 `json:"amount"`
	IPNCallbackURL string  `json:"ipn_callback_url,omitempty"`
	ExtraID        string  `json:"extra_id,omitempty"`
	ContactEmail   string  `json:"contact_email,omitempty"`
}

type PayoutInfo struct {
	ID               FlexID  `json:"id"`
	Status           string  `json:"status"`
	Address          string  `json:"address"`
	Currency         string  `json:"currency"`
	Amount           float64 `json:"amount"`
	Fee              float64 `json:"fee,omitempty"`
	EstimatedArrival string  `json:"estimated_arrival,omitempty"`
	Hash             string  `json:"hash,omitempty"`
}

type statusResponse struct {
	Message string `json:"message"`
}

type currenciesResponse struct {
	Currencies []string `json:"currencies"`
}

type minAmountResponse struct {
	MinAmount float64 `json:"min_amount"`
}

type payoutEnvelope struct {
	ID          FlexID       `json:"id"`
	Withdrawals []PayoutInfo `json:"withdrawals"`
}

type validateAddressRequest struct {
	Address  string `json:"address"`
	Currency string `json:"currency"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Status checks processor availability via the unauthenticated ping
// endpoint.
func (c *Client) Status(ctx context.Context) error {
	var out statusResponse
	return c.do(ctx, http.MethodGet, "/status", nil, &out)
}

func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	var out currenciesResponse
	if err := c.do(ctx, http.MethodGet, "/currencies", nil, &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

func (c *Client) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentInfo, error) {
	var out PaymentInfo
	if err := c.do(ctx, http.MethodPost, "/payment", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (*PaymentInfo, error) {
	var out PaymentInfo
	path := "/payment/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MinimumAmount(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	var out minAmountResponse
	path := fmt.Sprintf("/min-amount?currency_from=%s&currency_to=%s",
		url.QueryEscape(fromCurrency), url.QueryEscape(toCurrency))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.MinAmount, nil
}

func (c *Client) EstimatePrice(ctx context.Context, amount float64, fromCurrency, toCurrency string) (*Estimate, error) {
	var out Estimate
	path := fmt.Sprintf("/estimate?amount=%g&currency_from=%s&currency_to=%s",
		amount, url.QueryEscape(fromCurrency), url.QueryEscape(toCurrency))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePayout submits a single withdrawal. The processor's payout API
// is batch shaped, so the response is unwrapped back to the one item we
// sent.
func (c *Client) CreatePayout(ctx context.Context, req *CreatePayoutRequest) (*PayoutInfo, error) {
	body := map[string]interface{}{
		"withdrawals": []*CreatePayoutRequest{req},
	}
	var out payoutEnvelope
	if err := c.do(ctx, http.MethodPost, "/payout", body, &out); err != nil {
		return nil, err
	}
	if len(out.Withdrawals) == 0 {
		return nil, errors.NewExternalError("processor returned empty payout batch", errors.ErrCodeProcessorError, http.StatusBadGateway)
	}
	info := out.Withdrawals[0]
	if info.ID == "" {
		info.ID = out.ID
	}
	return &info, nil
}

func (c *Client) ValidatePayoutAddress(ctx context.Context, address, currency string) error {
	body := validateAddressRequest{Address: address, Currency: currency}
	return c.do(ctx, http.MethodPost, "/payout/validate-address", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternalError("failed to encode processor request", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewInternalError("failed to build processor request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("processor request failed", "method", method, "path", path, "error", err)
		return errors.NewUnavailableError("payment processor unreachable", errors.ErrCodeProcessorUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewExternalError("failed to decode processor response", errors.ErrCodeProcessorError, http.StatusBadGateway)
	}
	return nil
}

func (c *Client) mapError(resp *http.Response, method, path string) error {
	var body apiErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	message := body.Message
	if message == "" {
		message = resp.Status
	}

	c.logger.Error("processor returned error",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"message", message,
	)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return errors.NewValidationError(message, errors.ErrCodeProcessorError)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewExternalError("processor rejected credentials", errors.ErrCodeProcessorError, http.StatusBadGateway)
	case http.StatusNotFound:
		return errors.NewNotFoundError(message, errors.ErrCodeProcessorError)
	case http.StatusTooManyRequests:
		return errors.NewExternalError("processor rate limit exceeded", errors.ErrCodeProcessorError, http.StatusServiceUnavailable)
	default:
		return errors.NewExternalError(message, errors.ErrCodeProcessorError, http.StatusBadGateway)
	}
}
