package payment_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	paymentmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/payment"
	"github.com/frahmantamala/crypto-gateway/internal/payment"
)

func fptr(v float64) *float64 { return &v }

var _ = Describe("Payment reconciliation", func() {
	var (
		rec *paymentmodel.Record
		now time.Time
	)

	BeforeEach(func() {
		now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		rec = &paymentmodel.Record{
			PaymentID:   "123",
			UserID:      "user_1",
			Amount:      100,
			Currency:    "usdtbsc",
			PayAmount:   100,
			PayCurrency: "usdtbsc",
			Status:      "waiting",
		}
	})

	It("records plain progress for confirming", func() {
		result := payment.Reconcile(rec, &payment.Notification{Status: "confirming"}, now)
		Expect(result.Kind).To(Equal(payment.TransitionProgress))
		Expect(result.NewStatus).To(Equal(payment.StatusConfirming))
		Expect(result.Delta["status"]).To(Equal("confirming"))
		Expect(result.Delta).NotTo(HaveKey("confirmed_at"))
	})

	It("normalizes status casing", func() {
		result := payment.Reconcile(rec, &payment.Notification{Status: " Finished "}, now)
		Expect(result.NewStatus).To(Equal(payment.StatusFinished))
	})

	It("stamps confirmed_amount and confirmed_at on confirmed", func() {
		result := payment.Reconcile(rec, &payment.Notification{
			Status:       "confirmed",
			ActuallyPaid: fptr(100),
		}, now)
		Expect(result.Kind).To(Equal(payment.TransitionConfirmed))
		Expect(result.Delta["confirmed_amount"]).To(Equal(100.0))
		Expect(result.Delta["confirmed_at"]).To(Equal(now))
	})

	Describe("finished payments", func() {
		It("prefers outcome_amount for the final amount", func() {
			result := payment.Reconcile(rec, &payment.Notification{
				Status:        "finished",
				ActuallyPaid:  fptr(100),
				OutcomeAmount: fptr(99.5),
			}, now)
			Expect(result.Kind).To(Equal(payment.TransitionFinished))
			Expect(result.Delta["final_amount"]).To(Equal(99.5))
			Expect(result.Delta["completed_at"]).To(Equal(now))
		})

		It("falls back to actually_paid when outcome_amount is absent", func() {
			result := payment.Reconcile(rec, &payment.Notification{
				Status:       "finished",
				ActuallyPaid: fptr(100),
			}, now)
			Expect(result.Delta["final_amount"]).To(Equal(100.0))
		})

		It("falls back to the expected pay_amount when nothing was reported", func() {
			result := payment.Reconcile(rec, &payment.Notification{Status: "finished"}, now)
			Expect(result.Delta["final_amount"]).To(Equal(100.0))
		})
	})

	Describe("failure statuses", func() {
		It("stamps failed_at on failed", func() {
			result := payment.Reconcile(rec, &payment.Notification{Status: "failed"}, now)
			Expect(result.Kind).To(Equal(payment.TransitionFailed))
			Expect(result.Delta["failed_at"]).To(Equal(now))
			Expect(result.Delta).NotTo(HaveKey("expired_at"))
		})

		It("stamps both failed_at and expired_at on expired", func() {
			result := payment.Reconcile(rec, &payment.Notification{Status: "expired"}, now)
			Expect(result.Kind).To(Equal(payment.TransitionFailed))
			Expect(result.Delta["failed_at"]).To(Equal(now))
			Expect(result.Delta["expired_at"]).To(Equal(now))
		})
	})

	Describe("terminal records", func() {
		It("absorbs any further notification", func() {
			for _, status := range []string{"finished", "failed", "expired", "refunded"} {
				rec.Status = status
				result := payment.Reconcile(rec, &payment.Notification{Status: "waiting"}, now)
				Expect(result.Kind).To(Equal(payment.TransitionAlreadyFinal))
				Expect(result.Delta).To(BeNil())
			}
		})
	})

	Describe("partial payments", func() {
		It("bands 96% as near complete", func() {
			result := payment.Reconcile(rec, &payment.Notification{
				Status:       "partially_paid",
				PayAmount:    fptr(100),
				ActuallyPaid: fptr(96),
			}, now)
			Expect(result.Kind).To(Equal(payment.TransitionPartiallyPaid))
			Expect(result.Partial).NotTo(BeNil())
			Expect(result.Partial.Band).To(Equal(payment.BandNearComplete))
			Expect(result.Partial.Shortfall).To(Equal(4.0))
			Expect(result.Partial.PercentagePaid).To(Equal(96.0))
		})

		It("bands 60% as contact user", func() {
			detail := payment.ClassifyPartial(100, 60)
			Expect(detail.Band).To(Equal(payment.BandContactUser))
		})

		It("bands 10% as consider refund", func() {
			detail := payment.ClassifyPartial(100, 10)
			Expect(detail.Band).To(Equal(payment.BandConsiderRefund))
		})

		It("treats exactly 95% as near complete and exactly 50% as contact user", func() {
			Expect(payment.ClassifyPartial(100, 95).Band).To(Equal(payment.BandNearComplete))
			Expect(payment.ClassifyPartial(100, 50).Band).To(Equal(payment.BandContactUser))
		})

		It("falls back to the order amount when pay_amount is unknown", func() {
			rec.PayAmount = 0
			result := payment.Reconcile(rec, &payment.Notification{
				Status:       "partially_paid",
				ActuallyPaid: fptr(50),
			}, now)
			Expect(result.Partial.Expected).To(Equal(100.0))
		})
	})

	It("never overwrites stored amounts with absent fields", func() {
		result := payment.Reconcile(rec, &payment.Notification{Status: "confirming"}, now)
		Expect(result.Delta).NotTo(HaveKey("actually_paid"))
		Expect(result.Delta).NotTo(HaveKey("pay_amount"))
		Expect(result.Delta).NotTo(HaveKey("fee"))
	})
})
