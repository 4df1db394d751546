package webhook_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/crypto-gateway/internal/webhook"
)

var _ = Describe("Signature verification", func() {
	var (
		body   []byte
		secret string
	)

	BeforeEach(func() {
		body = []byte(`{"payment_id":"12345","payment_status":"finished"}`)
		secret = "super-secret"
	})

	Context("with a correctly signed body", func() {
		It("accepts in production", func() {
			sig := webhook.ComputeSignature(body, secret)
			verdict := webhook.VerifySignature(body, sig, secret, false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictOK))
		})

		It("accepts in sandbox", func() {
			sig := webhook.ComputeSignature(body, secret)
			verdict := webhook.VerifySignature(body, sig, secret, true)
			Expect(verdict.Kind).To(Equal(webhook.VerdictOK))
		})
	})

	Context("with a tampered body", func() {
		It("rejects in production", func() {
			sig := webhook.ComputeSignature(body, secret)
			tampered := []byte(`{"payment_id":"12345","payment_status":"failed"}`)
			verdict := webhook.VerifySignature(tampered, sig, secret, false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictReject))
		})

		It("accepts with warning in sandbox", func() {
			sig := webhook.ComputeSignature(body, secret)
			tampered := []byte(`{"payment_id":"12345","payment_status":"failed"}`)
			verdict := webhook.VerifySignature(tampered, sig, secret, true)
			Expect(verdict.Kind).To(Equal(webhook.VerdictAcceptWithWarning))
		})
	})

	Context("with a signature from the wrong secret", func() {
		It("rejects in production", func() {
			sig := webhook.ComputeSignature(body, "other-secret")
			verdict := webhook.VerifySignature(body, sig, secret, false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictReject))
		})
	})

	Context("with a missing signature", func() {
		It("rejects in production", func() {
			verdict := webhook.VerifySignature(body, "", secret, false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictReject))
		})

		It("accepts with warning in sandbox", func() {
			verdict := webhook.VerifySignature(body, "", secret, true)
			Expect(verdict.Kind).To(Equal(webhook.VerdictAcceptWithWarning))
		})
	})

	Context("with no secret configured", func() {
		It("accepts with warning even in production", func() {
			verdict := webhook.VerifySignature(body, "whatever", "", false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictAcceptWithWarning))
		})
	})

	Context("with a non-hex signature header", func() {
		It("rejects in production", func() {
			verdict := webhook.VerifySignature(body, "not-hex-at-all", secret, false)
			Expect(verdict.Kind).To(Equal(webhook.VerdictReject))
		})
	})
})

var _ = Describe("Payload classification", func() {
	It("classifies payment notifications by payment_id", func() {
		p, err := webhook.ParsePayload([]byte(`{"payment_id":4532189076,"payment_status":"confirmed"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, id := p.Classify()
		Expect(kind).To(Equal(webhook.KindPayment))
		Expect(id).To(Equal("4532189076"))
	})

	It("keeps string payment ids as-is", func() {
		p, err := webhook.ParsePayload([]byte(`{"payment_id":"abc-123","payment_status":"waiting"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, id := p.Classify()
		Expect(kind).To(Equal(webhook.KindPayment))
		Expect(id).To(Equal("abc-123"))
	})

	It("resolves batch payout notifications by the per-payout id", func() {
		p, err := webhook.ParsePayload([]byte(`{"id":"991","batch_withdrawal_id":"5000000042","currency":"usdtbsc","address":"0xabc","status":"completed"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, id := p.Classify()
		Expect(kind).To(Equal(webhook.KindWithdrawal))
		Expect(id).To(Equal("991"))
	})

	It("treats a batch id without a per-payout id as unresolvable", func() {
		p, err := webhook.ParsePayload([]byte(`{"batch_withdrawal_id":"5000000042","status":"completed"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, _ := p.Classify()
		Expect(kind).To(Equal(webhook.KindUnknown))
	})

	It("classifies withdrawals by the id/currency/address triple", func() {
		p, err := webhook.ParsePayload([]byte(`{"id":77,"currency":"usdtbsc","address":"0xabc","status":"sending"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, id := p.Classify()
		Expect(kind).To(Equal(webhook.KindWithdrawal))
		Expect(id).To(Equal("77"))
	})

	It("does not treat a bare id without currency and address as a withdrawal", func() {
		p, err := webhook.ParsePayload([]byte(`{"id":77,"status":"sending"}`))
		Expect(err).NotTo(HaveOccurred())
		kind, _ := p.Classify()
		Expect(kind).To(Equal(webhook.KindUnknown))
	})

	It("rejects malformed bodies", func() {
		_, err := webhook.ParsePayload([]byte(`{"payment_id":`))
		Expect(err).To(HaveOccurred())
	})
})
