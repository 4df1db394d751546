package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/crypto-gateway/internal/payment"
	"github.com/frahmantamala/crypto-gateway/internal/transport/middleware"
	"github.com/frahmantamala/crypto-gateway/internal/transport/swagger"
	"github.com/frahmantamala/crypto-gateway/internal/webhook"
	"github.com/frahmantamala/crypto-gateway/internal/withdrawal"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, webhookHandler *webhook.Handler, paymentHandler *payment.Handler, withdrawalHandler *withdrawal.Handler, allowedOrigins []string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve the OpenAPI document at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/webhook/ipn", webhookHandler.HandleIPN)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreateDeposit)
				pr.Get("/{paymentID}", paymentHandler.GetPayment)
			})
		}

		if withdrawalHandler != nil {
			r.Route("/withdrawals", func(wr chi.Router) {
				wr.Post("/", withdrawalHandler.CreateWithdrawal)
				wr.Get("/{withdrawalID}", withdrawalHandler.GetWithdrawal)
			})
		}

		r.Route("/users/{userID}", func(ur chi.Router) {
			if paymentHandler != nil {
				ur.Get("/payments", paymentHandler.ListUserPayments)
				ur.Get("/payments/stats", paymentHandler.UserStats)
			}
			if withdrawalHandler != nil {
				ur.Get("/withdrawals", withdrawalHandler.ListUserWithdrawals)
				ur.Get("/withdrawals/stats", withdrawalHandler.UserStats)
			}
		})
	})
}
