package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	internal "github.com/frahmantamala/pos-billing/internal"
	"github.com/frahmantamala/pos-billing/internal/subscription"
	"github.com/frahmantamala/pos-billing/internal/transport/middleware"
	"github.com/frahmantamala/pos-billing/internal/transport/swagger"
)

// RegisterAllRoutes mounts everything the HTTP server serves. Webhook
// routes are public, providers authenticate with signatures; the admin
// subscription routes sit behind the service token guard.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg *internal.Config, subscriptionHandler *subscription.Handler, webhookHandler *subscription.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// OpenAPI spec and Swagger UI at root, outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Route("/webhooks", func(wr chi.Router) {
				wr.Post("/midtrans/notification", webhookHandler.HandleMidtransNotification)
				wr.Get("/midtrans/finish", webhookHandler.HandleMidtransFinish)
				wr.Post("/xendit/invoice", webhookHandler.HandleXenditInvoiceCallback)
			})
		}

		if subscriptionHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(middleware.ServiceAuth(cfg.Security.ServiceTokenSecret))

				pr.Route("/subscriptions", func(sr chi.Router) {
					sr.Get("/{id}", subscriptionHandler.GetSubscription)
					sr.Post("/{id}/cancel", subscriptionHandler.CancelSubscription)
					sr.Get("/{id}/payments", subscriptionHandler.ListPayments)
				})
			})
		}
	})
}
