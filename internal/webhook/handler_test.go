package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/crypto-gateway/internal"
	paymentmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	withdrawalmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/core/events"
	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/docstore/memory"
	"github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/webhook"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry(sandbox bool) *tenant.Registry {
	registry, err := tenant.NewRegistry([]internal.TenantConfig{
		{
			Category:             "packages",
			APIKey:               "pk-key",
			IPNSecret:            "packages-secret",
			Sandbox:              sandbox,
			PaymentCollection:    "packages_payments",
			WithdrawalCollection: "packages_withdrawals",
		},
		{
			Category:             "matrix",
			APIKey:               "mx-key",
			IPNSecret:            "matrix-secret",
			Sandbox:              sandbox,
			PaymentCollection:    "matrix_payments",
			WithdrawalCollection: "matrix_withdrawals",
		},
		{
			Category:             "lottery",
			APIKey:               "lt-key",
			IPNSecret:            "lottery-secret",
			Sandbox:              sandbox,
			PaymentCollection:    "lottery_payments",
			WithdrawalCollection: "lottery_withdrawals",
		},
	})
	Expect(err).NotTo(HaveOccurred())
	return registry
}

var _ = Describe("IPN handler", func() {
	var (
		store    *memory.Store
		registry *tenant.Registry
		handler  *webhook.Handler
		bus      *events.EventBus
	)

	newHandler := func(sandbox bool) *webhook.Handler {
		lg := testLogger()
		registry = testRegistry(sandbox)
		resolver := webhook.NewResolver(registry, store, time.Millisecond, lg)
		bus = events.NewEventBus(lg)
		return webhook.NewHandler(resolver,
			payment.NewService(store, lg),
			withdrawal.NewService(store, lg),
			bus, lg)
	}

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/ipn", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set("X-Signature", signature)
		}
		rec := httptest.NewRecorder()
		handler.HandleIPN(rec, req)
		return rec
	}

	seedPayment := func(collection string, rec *paymentmodel.Record) {
		doc, err := rec.Document()
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Create(context.Background(), collection, rec.PaymentID, doc)
		Expect(err).NotTo(HaveOccurred())
	}

	loadPayment := func(collection, id string) *paymentmodel.Record {
		doc, err := store.Get(context.Background(), collection, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc).NotTo(BeNil())
		rec, err := paymentmodel.FromDocument(doc)
		Expect(err).NotTo(HaveOccurred())
		return rec
	}

	BeforeEach(func() {
		store = memory.NewStore()
		handler = newHandler(false)
	})

	Describe("payment notifications", func() {
		BeforeEach(func() {
			seedPayment("matrix_payments", &paymentmodel.Record{
				PaymentID:   "4532189076",
				UserID:      "user_1",
				Amount:      100,
				Currency:    "usdtbsc",
				PayAmount:   100,
				PayCurrency: "usdtbsc",
				Status:      "waiting",
			})
		})

		It("reconciles a signed confirmed notification", func() {
			body := []byte(`{"payment_id":4532189076,"payment_status":"confirmed","actually_paid":100}`)
			sig := webhook.ComputeSignature(body, "matrix-secret")

			rec := post(body, sig)
			Expect(rec.Code).To(Equal(http.StatusOK))

			var ack map[string]interface{}
			Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack["payment_id"]).To(Equal("4532189076"))
			Expect(ack["category"]).To(Equal("matrix"))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("confirmed"))
			Expect(updated.ConfirmedAmount).To(Equal(100.0))
			Expect(updated.ConfirmedAt).NotTo(BeNil())
			Expect(updated.WebhookAttempts).To(Equal(1))
		})

		It("stamps completion fields when the payment finishes", func() {
			body := []byte(`{"payment_id":"4532189076","payment_status":"finished","actually_paid":100,"outcome_amount":99.5,"outcome_currency":"USDTBSC","fee":0.5}`)
			sig := webhook.ComputeSignature(body, "matrix-secret")

			rec := post(body, sig)
			Expect(rec.Code).To(Equal(http.StatusOK))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("finished"))
			Expect(updated.FinalAmount).To(Equal(99.5))
			Expect(updated.OutcomeCurrency).To(Equal("usdtbsc"))
			Expect(updated.CompletedAt).NotTo(BeNil())
		})

		It("absorbs notifications for already-final payments but still counts the attempt", func() {
			body := []byte(`{"payment_id":"4532189076","payment_status":"finished","actually_paid":100}`)
			sig := webhook.ComputeSignature(body, "matrix-secret")
			Expect(post(body, sig).Code).To(Equal(http.StatusOK))

			late := []byte(`{"payment_id":"4532189076","payment_status":"failed"}`)
			lateSig := webhook.ComputeSignature(late, "matrix-secret")
			resp := post(late, lateSig)
			Expect(resp.Code).To(Equal(http.StatusOK))

			var ack map[string]interface{}
			Expect(json.Unmarshal(resp.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack["status"]).To(Equal("already final"))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("finished"))
			Expect(updated.WebhookAttempts).To(Equal(2))
		})

		It("acknowledges notifications for records it cannot find", func() {
			body := []byte(`{"payment_id":"9999999999","payment_status":"confirmed"}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusOK))

			var ack map[string]interface{}
			Expect(json.Unmarshal(resp.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack["warning"]).To(Equal("payment record not found"))
		})

		It("rejects a bad signature for a production tenant", func() {
			body := []byte(`{"payment_id":"4532189076","payment_status":"confirmed"}`)
			resp := post(body, "deadbeef")
			Expect(resp.Code).To(Equal(http.StatusUnauthorized))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("waiting"))
			Expect(updated.WebhookAttempts).To(Equal(0))
		})

		It("rejects a missing signature for a production tenant", func() {
			body := []byte(`{"payment_id":"4532189076","payment_status":"confirmed"}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts a missing signature for a sandbox tenant", func() {
			handler = newHandler(true)
			body := []byte(`{"payment_id":"4532189076","payment_status":"confirmed","actually_paid":100}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusOK))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("confirmed"))
		})

		It("classifies a partial payment and keeps the record open", func() {
			body := []byte(`{"payment_id":"4532189076","payment_status":"partially_paid","actually_paid":60,"pay_amount":100}`)
			sig := webhook.ComputeSignature(body, "matrix-secret")
			resp := post(body, sig)
			Expect(resp.Code).To(Equal(http.StatusOK))

			updated := loadPayment("matrix_payments", "4532189076")
			Expect(updated.Status).To(Equal("partially_paid"))
			Expect(updated.ActuallyPaid).To(Equal(60.0))
			Expect(updated.CompletedAt).To(BeNil())
		})
	})

	Describe("withdrawal notifications", func() {
		BeforeEach(func() {
			rec := &withdrawalmodel.Record{
				WithdrawalID:      "wd_1700000000000_ab12",
				UserID:            "user_2",
				Amount:            50,
				Currency:          "usdtbsc",
				WithdrawalAddress: "0xabc",
				Status:            "pending",
				Metadata: map[string]interface{}{
					withdrawalmodel.MetadataProcessorID: "7000000001",
				},
			}
			doc, err := rec.Document()
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Create(context.Background(), "lottery_withdrawals", rec.WithdrawalID, doc)
			Expect(err).NotTo(HaveOccurred())
		})

		loadWithdrawal := func() *withdrawalmodel.Record {
			doc, err := store.Get(context.Background(), "lottery_withdrawals", "wd_1700000000000_ab12")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).NotTo(BeNil())
			rec, err := withdrawalmodel.FromDocument(doc)
			Expect(err).NotTo(HaveOccurred())
			return rec
		}

		It("resolves by the processor payout id and reconciles completion", func() {
			body := []byte(`{"id":"7000000001","batch_withdrawal_id":"5000000042","status":"completed","hash":"0xdeadbeef","fee":0.1}`)
			sig := webhook.ComputeSignature(body, "lottery-secret")

			resp := post(body, sig)
			Expect(resp.Code).To(Equal(http.StatusOK))

			var ack map[string]interface{}
			Expect(json.Unmarshal(resp.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack["withdrawal_id"]).To(Equal("wd_1700000000000_ab12"))
			Expect(ack["category"]).To(Equal("lottery"))

			updated := loadWithdrawal()
			Expect(updated.Status).To(Equal("completed"))
			Expect(updated.TxHash).To(Equal("0xdeadbeef"))
			Expect(updated.Fee).To(Equal(0.1))
			Expect(updated.CompletedAt).NotTo(BeNil())
			Expect(updated.WebhookAttempts).To(Equal(1))
		})

		It("recognizes the id/currency/address shape", func() {
			body := []byte(`{"id":7000000001,"currency":"usdtbsc","address":"0xabc","status":"sending"}`)
			sig := webhook.ComputeSignature(body, "lottery-secret")

			resp := post(body, sig)
			Expect(resp.Code).To(Equal(http.StatusOK))

			updated := loadWithdrawal()
			Expect(updated.Status).To(Equal("sending"))
			Expect(updated.SendingAt).NotTo(BeNil())
		})

		It("acknowledges unknown payout ids with a warning", func() {
			body := []byte(`{"id":"404404","batch_withdrawal_id":"5000000042","status":"completed"}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusOK))

			var ack map[string]interface{}
			Expect(json.Unmarshal(resp.Body.Bytes(), &ack)).To(Succeed())
			Expect(ack["warning"]).To(Equal("withdrawal record not found"))
		})
	})

	Describe("classification failures", func() {
		It("rejects bodies with no identifier", func() {
			body := []byte(`{"status":"completed"}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a batch id that carries no per-payout id", func() {
			body := []byte(`{"batch_withdrawal_id":"5000000042","status":"completed"}`)
			resp := post(body, "")
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects malformed JSON", func() {
			resp := post([]byte(`{"payment_id":`), "")
			Expect(resp.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("Resolver", func() {
	var (
		store    *memory.Store
		registry *tenant.Registry
		resolver *webhook.Resolver
	)

	BeforeEach(func() {
		store = memory.NewStore()
		registry = testRegistry(false)
		resolver = webhook.NewResolver(registry, store, time.Millisecond, testLogger())
	})

	It("finds a payment in whichever collection owns it", func() {
		_, err := store.Create(context.Background(), "lottery_payments", "123",
			docstore.Document{"payment_id": "123", "status": "waiting"})
		Expect(err).NotTo(HaveOccurred())

		match, err := resolver.ResolvePayment(context.Background(), "123")
		Expect(err).NotTo(HaveOccurred())
		Expect(match).NotTo(BeNil())
		Expect(match.Config.Category).To(Equal(tenant.CategoryLottery))
	})

	It("returns no match after the retry when the record never appears", func() {
		match, err := resolver.ResolvePayment(context.Background(), "void")
		Expect(err).NotTo(HaveOccurred())
		Expect(match).To(BeNil())
	})

	It("prefers the earliest category in probe order", func() {
		for _, coll := range []string{"packages_payments", "matrix_payments"} {
			_, err := store.Create(context.Background(), coll, "dup",
				docstore.Document{"payment_id": "dup", "status": "waiting"})
			Expect(err).NotTo(HaveOccurred())
		}

		match, err := resolver.ResolvePayment(context.Background(), "dup")
		Expect(err).NotTo(HaveOccurred())
		Expect(match).NotTo(BeNil())
		Expect(match.Config.Category).To(Equal(tenant.CategoryPackages))
	})
})
