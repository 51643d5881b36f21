package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/erazemk/assetflow/internal/attachment"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/notify"
)

// Options configures optional collaborators of the router.
type Options struct {
	// Notifier sends resend notifications. Defaults to one that only logs.
	Notifier *notify.Service
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
	// MaxAttachmentBytes caps acceptance attachments.
	MaxAttachmentBytes int64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, opts Options) http.Handler {
	if opts.Notifier == nil {
		logger := slog.Default()
		opts.Notifier = notify.NewService(db, notify.NewLogPublisher(logger), nil, logger)
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = attachment.DefaultMaxBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	assetsHandler := &AssetsHandler{DB: db}
	transfersHandler := &TransfersHandler{DB: db, Now: opts.Now}
	acceptanceHandler := &AcceptanceHandler{DB: db, MaxBytes: opts.MaxAttachmentBytes, Now: opts.Now}
	notifyHandler := &NotificationsHandler{DB: db, Notifier: opts.Notifier}
	stockHandler := &StockHandler{DB: db, Now: opts.Now}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public: login.
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret, db))

			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/password", authHandler.ChangePassword)
			r.Post("/auth/logout", authHandler.Logout)

			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}/password", usersHandler.ResetPassword)
				r.Delete("/{id}", usersHandler.Delete)
			})

			r.Route("/assets", func(r chi.Router) {
				r.Get("/", assetsHandler.List)
				r.With(requireManager).Post("/", assetsHandler.Create)
				r.Get("/types", assetsHandler.ListTypes)
				r.With(requireManager).Post("/types", assetsHandler.CreateType)

				r.Get("/transfer-checklist", assetsHandler.ListChecklist)
				r.With(requireManager).Post("/transfer-checklist", assetsHandler.CreateChecklistItem)
				r.With(requireManager).Delete("/transfer-checklist/{id}", assetsHandler.DeleteChecklistItem)

				r.Route("/transfers", func(r chi.Router) {
					r.Get("/", transfersHandler.List)
					r.Post("/", transfersHandler.Create)
					r.Get("/{id}", transfersHandler.Get)
					r.Get("/{id}/items/{itemId}", transfersHandler.GetItem)
					r.With(requireManager).Put("/{id}/approval", transfersHandler.Decide)

					// {id} is the transfer item here.
					r.Put("/{id}/acceptance", acceptanceHandler.Accept)
					r.Get("/{id}/acceptance/attachment", acceptanceHandler.Attachment)

					r.Get("/{id}/notifications", notifyHandler.List)
					r.Post("/{id}/resend-approval-notification", notifyHandler.ResendApproval)
					r.Post("/{id}/resend-acceptance-notification", notifyHandler.ResendAcceptance)
				})

				r.Get("/{id}", assetsHandler.Get)
			})

			r.Route("/stock", func(r chi.Router) {
				r.Get("/units", stockHandler.ListUnits)
				r.With(requireManager).Post("/purchases", stockHandler.CreatePurchase)
				r.With(requireManager).Get("/purchases/{id}", stockHandler.GetPurchase)
				r.Post("/requests", stockHandler.CreateRequest)
				r.Get("/requests/{id}", stockHandler.GetRequest)
				r.With(requireManager).Post("/requests/{id}/lines/{lineId}/serials", stockHandler.AllocateSerial)
				r.With(requireManager).Put("/requests/{id}/lines/{lineId}/approved-qty", stockHandler.SetApprovedQty)
			})
		})
	})

	return r
}
