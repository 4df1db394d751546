package memory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/crypto-gateway/internal/docstore"
	"github.com/frahmantamala/crypto-gateway/internal/docstore/memory"
)

var _ = Describe("Memory store", func() {
	var (
		store *memory.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = memory.NewStore()
		ctx = context.Background()
	})

	It("returns nil for a missing document without an error", func() {
		doc, err := store.Get(ctx, "payments", "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc).To(BeNil())
	})

	It("stamps created_at and updated_at on create", func() {
		doc, err := store.Create(ctx, "payments", "1", docstore.Document{"status": "waiting"})
		Expect(err).NotTo(HaveOccurred())
		Expect(doc["created_at"]).To(BeAssignableToTypeOf(time.Time{}))
		Expect(doc["updated_at"]).To(BeAssignableToTypeOf(time.Time{}))
	})

	It("refuses duplicate creates", func() {
		_, err := store.Create(ctx, "payments", "1", docstore.Document{})
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Create(ctx, "payments", "1", docstore.Document{})
		Expect(err).To(MatchError(docstore.ErrAlreadyExists))
	})

	It("preserves created_at across Set", func() {
		created, err := store.Create(ctx, "payments", "1", docstore.Document{"status": "waiting"})
		Expect(err).NotTo(HaveOccurred())

		replaced, err := store.Set(ctx, "payments", "1", docstore.Document{"status": "confirmed"})
		Expect(err).NotTo(HaveOccurred())
		Expect(replaced["created_at"]).To(Equal(created["created_at"]))
		Expect(replaced).NotTo(HaveKey("amount"))
	})

	Describe("Update", func() {
		It("merges only the given fields", func() {
			_, err := store.Create(ctx, "payments", "1", docstore.Document{
				"status": "waiting",
				"amount": 100.0,
			})
			Expect(err).NotTo(HaveOccurred())

			updated, err := store.Update(ctx, "payments", "1", docstore.Document{"status": "confirmed"})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated["status"]).To(Equal("confirmed"))
			Expect(updated["amount"]).To(Equal(100.0))
		})

		It("errors on a missing document", func() {
			_, err := store.Update(ctx, "payments", "missing", docstore.Document{"status": "x"})
			Expect(err).To(MatchError(docstore.ErrNotFound))
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			_, err := store.Create(ctx, "withdrawals", "wd_1", docstore.Document{
				"user_id": "u1",
				"status":  "pending",
				"metadata": map[string]interface{}{
					"processor_withdrawal_id": "700",
				},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Create(ctx, "withdrawals", "wd_2", docstore.Document{
				"user_id": "u1",
				"status":  "completed",
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("matches equality predicates", func() {
			docs, err := store.Query(ctx, "withdrawals", []docstore.Predicate{
				{Field: "status", Op: "==", Value: "pending"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})

		It("resolves dotted paths into nested maps", func() {
			docs, err := store.Query(ctx, "withdrawals", []docstore.Predicate{
				{Field: "metadata.processor_withdrawal_id", Op: "==", Value: "700"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})

		It("excludes documents missing the predicate field", func() {
			docs, err := store.Query(ctx, "withdrawals", []docstore.Predicate{
				{Field: "metadata.processor_withdrawal_id", Op: "==", Value: "701"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeEmpty())
		})

		It("compares timestamps with the < operator", func() {
			docs, err := store.Query(ctx, "withdrawals", []docstore.Predicate{
				{Field: "created_at", Op: "<", Value: time.Now().Add(time.Hour)},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
		})
	})

	It("isolates returned documents from later mutations", func() {
		doc, err := store.Create(ctx, "payments", "1", docstore.Document{"status": "waiting"})
		Expect(err).NotTo(HaveOccurred())

		doc["status"] = "tampered"

		stored, err := store.Get(ctx, "payments", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored["status"]).To(Equal("waiting"))
	})
})
