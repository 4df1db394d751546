package withdrawal_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/crypto-gateway/internal"
	withdrawalmodel "github.com/frahmantamala/crypto-gateway/internal/core/datamodel/withdrawal"
	"github.com/frahmantamala/crypto-gateway/internal/docstore/memory"
	"github.com/frahmantamala/crypto-gateway/internal/tenant"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
	"github.com/frahmantamala/crypto-gateway/pkg/logger"
)

var _ = Describe("Withdrawal service", func() {
	var (
		store   *memory.Store
		service *withdrawal.Service
		cfg     tenant.Config
		ctx     context.Context
	)

	BeforeEach(func() {
		store = memory.NewStore()
		service = withdrawal.NewService(store, logger.LoggerWrapper())
		cfg = tenant.Config{
			Category:             tenant.CategoryMatrix,
			PaymentCollection:    "matrix_payments",
			WithdrawalCollection: "matrix_withdrawals",
		}
		ctx = context.Background()
	})

	newRecord := func(id, processorID string) *withdrawalmodel.Record {
		rec := &withdrawalmodel.Record{
			WithdrawalID:      id,
			UserID:            "u1",
			Amount:            50,
			Currency:          "usdtbsc",
			WithdrawalAddress: "0xabc",
			Status:            "pending",
		}
		if processorID != "" {
			rec.Metadata = map[string]interface{}{
				withdrawalmodel.MetadataProcessorID: processorID,
			}
		}
		return rec
	}

	It("round-trips a record through the store", func() {
		stored, err := service.Create(ctx, cfg, newRecord("wd_1", "700"))
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.ProcessorID()).To(Equal("700"))

		loaded, err := service.Get(ctx, cfg, "wd_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.WithdrawalAddress).To(Equal("0xabc"))
	})

	It("returns not found for unknown ids", func() {
		_, err := service.Get(ctx, cfg, "missing")
		Expect(err).To(Equal(apperrors.ErrWithdrawalNotFound))
	})

	Describe("FindByProcessorID", func() {
		It("resolves through the metadata index", func() {
			_, err := service.Create(ctx, cfg, newRecord("wd_1", "700"))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, cfg, newRecord("wd_2", "701"))
			Expect(err).NotTo(HaveOccurred())

			rec, err := service.FindByProcessorID(ctx, cfg, "701")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).NotTo(BeNil())
			Expect(rec.WithdrawalID).To(Equal("wd_2"))
		})

		It("returns nil when nothing matches", func() {
			rec, err := service.FindByProcessorID(ctx, cfg, "404")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec).To(BeNil())
		})
	})

	Describe("UserStats", func() {
		It("breaks down counts per status with a completion rate", func() {
			_, err := service.Create(ctx, cfg, newRecord("wd_1", ""))
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, cfg, newRecord("wd_2", ""))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ApplyDelta(ctx, cfg, "wd_2", map[string]interface{}{"status": "completed"})
			Expect(err).NotTo(HaveOccurred())

			stats, err := service.UserStats(ctx, cfg, "u1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalWithdrawals).To(Equal(2))
			Expect(stats.ByStatus["pending"].Count).To(Equal(1))
			Expect(stats.ByStatus["completed"].Count).To(Equal(1))
			Expect(stats.CompletionRate).To(Equal(50.0))
		})
	})

	It("refuses duplicate withdrawal ids", func() {
		_, err := service.Create(ctx, cfg, newRecord("wd_1", ""))
		Expect(err).NotTo(HaveOccurred())

		_, err = service.Create(ctx, cfg, newRecord("wd_1", ""))
		appErr, ok := apperrors.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Code).To(Equal(apperrors.ErrCodeWithdrawalExists))
	})
})
