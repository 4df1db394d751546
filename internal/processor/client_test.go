package processor_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/crypto-gateway/internal"
	"github.com/frahmantamala/crypto-gateway/internal/processor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Processor client", func() {
	var (
		server *httptest.Server
		client *processor.Client
	)

	newClient := func(handler http.HandlerFunc) *processor.Client {
		server = httptest.NewServer(handler)
		return processor.NewClient(processor.Config{
			BaseURL: server.URL,
			APIKey:  "test-key",
		}, testLogger())
	}

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	Describe("CreatePayment", func() {
		It("sends the api key and decodes numeric payment ids", func() {
			var gotKey string
			client = newClient(func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.Header.Get("x-api-key")
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/payment"))

				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{
					"payment_id": 4532189076,
					"payment_status": "waiting",
					"pay_address": "0xabc",
					"pay_amount": 100.5,
					"pay_currency": "usdtbsc",
					"price_amount": 100,
					"price_currency": "usd"
				}`))
			})

			info, err := client.CreatePayment(context.Background(), &processor.CreatePaymentRequest{
				PriceAmount:   100,
				PriceCurrency: "usd",
				PayCurrency:   "usdtbsc",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(gotKey).To(Equal("test-key"))
			Expect(info.PaymentID.String()).To(Equal("4532189076"))
			Expect(info.PayAmount).To(Equal(100.5))
		})

		It("maps 400 responses to validation errors", func() {
			client = newClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"message": "amount too small"})
			})

			_, err := client.CreatePayment(context.Background(), &processor.CreatePaymentRequest{})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(appErr.Message).To(Equal("amount too small"))
		})

		It("masks credential failures as bad gateway", func() {
			client = newClient(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})

			_, err := client.CreatePayment(context.Background(), &processor.CreatePaymentRequest{})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("CreatePayout", func() {
		It("wraps the single withdrawal in a batch and unwraps the response", func() {
			client = newClient(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/payout"))

				var body map[string]interface{}
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				withdrawals := body["withdrawals"].([]interface{})
				Expect(withdrawals).To(HaveLen(1))

				w.Write([]byte(`{
					"id": "batch-1",
					"withdrawals": [{
						"id": 7000000001,
						"status": "pending",
						"address": "0xabc",
						"currency": "usdtbsc",
						"amount": 50
					}]
				}`))
			})

			info, err := client.CreatePayout(context.Background(), &processor.CreatePayoutRequest{
				Address:  "0xabc",
				Currency: "usdtbsc",
				Amount:   50,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(info.ID.String()).To(Equal("7000000001"))
			Expect(info.Status).To(Equal("pending"))
		})
	})

	Describe("sandbox routing", func() {
		It("uses the sandbox base URL for sandbox tenants", func() {
			sandboxServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"message":"OK"}`))
			}))
			defer sandboxServer.Close()

			c := processor.NewClient(processor.Config{
				BaseURL:        "http://127.0.0.1:1",
				SandboxBaseURL: sandboxServer.URL,
				Sandbox:        true,
				APIKey:         "k",
			}, testLogger())

			Expect(c.Status(context.Background())).To(Succeed())
			Expect(c.Sandbox()).To(BeTrue())
		})
	})
})

var _ = Describe("FlexID", func() {
	It("accepts strings and numbers", func() {
		var v struct {
			ID processor.FlexID `json:"id"`
		}
		Expect(json.Unmarshal([]byte(`{"id":"abc"}`), &v)).To(Succeed())
		Expect(v.ID.String()).To(Equal("abc"))

		Expect(json.Unmarshal([]byte(`{"id":4532189076}`), &v)).To(Succeed())
		Expect(v.ID.String()).To(Equal("4532189076"))
	})

	It("rejects other JSON types", func() {
		var v struct {
			ID processor.FlexID `json:"id"`
		}
		Expect(json.Unmarshal([]byte(`{"id":[1]}`), &v)).NotTo(Succeed())
	})
})
