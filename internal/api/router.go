package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/mailhaven/mailstore/internal/metrics"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Mailboxes *MailboxHandler
	Messages  *MessageHandler
	Labels    *LabelHandler
	Search    *SearchHandler
	Quota     *QuotaHandler
	Ingest    *IngestHandler
	Account   *AccountHandler
	Cleanup   *CleanupHandler
}

// NewValidator creates the request validator shared by all handlers.
func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// NewRouter builds the HTTP router. User-facing routes live under /api/v1
// behind the account middleware; the delivery and purge endpoints live
// under /internal for the MTA edge and account system.
func NewRouter(h Handlers, db *sqlx.DB) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(correlationID)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", accountHeader, "X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireAccount)

		r.Route("/mailboxes", func(r chi.Router) {
			r.Get("/", h.Mailboxes.List)
			r.Post("/", h.Mailboxes.Create)
			r.Get("/{mailboxID}", h.Mailboxes.Get)
			r.Delete("/{mailboxID}", h.Mailboxes.Delete)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", h.Messages.List)
			r.Post("/drafts", h.Messages.SaveDraft)
			r.Post("/sent", h.Messages.RecordSent)
			r.Route("/{messageID}", func(r chi.Router) {
				r.Get("/", h.Messages.Get)
				r.Delete("/", h.Messages.Delete)
				r.Patch("/flags", h.Messages.UpdateFlags)
				r.Post("/move", h.Messages.Move)
				r.Post("/labels", h.Messages.ModifyLabels)
				r.Get("/thread", h.Messages.Thread)
				r.Get("/attachments/{attachmentID}/download", h.Messages.Download)
			})
		})

		r.Route("/labels", func(r chi.Router) {
			r.Get("/", h.Labels.List)
			r.Post("/", h.Labels.Create)
			r.Get("/{labelID}", h.Labels.Get)
			r.Patch("/{labelID}", h.Labels.Update)
			r.Delete("/{labelID}", h.Labels.Delete)
		})

		r.Get("/search", h.Search.Search)
		r.Get("/quota", h.Quota.Get)
	})

	r.Route("/internal", func(r chi.Router) {
		r.Post("/ingest", h.Ingest.Deliver)
		r.Delete("/accounts/{accountID}", h.Account.Purge)
		r.Get("/cleanup", h.Cleanup.Status)
	})

	return r
}

func healthHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"reason": "database unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
