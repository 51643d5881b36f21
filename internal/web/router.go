package web

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erazemk/assetflow/internal/api"
	"github.com/erazemk/assetflow/internal/attachment"
	"github.com/erazemk/assetflow/internal/notify"
	webembed "github.com/erazemk/assetflow/web"
)

// Options configures optional collaborators of the page router.
type Options struct {
	// Notifier sends resend notifications. Defaults to one that only logs.
	Notifier *notify.Service
	// MaxAttachmentBytes caps acceptance attachments.
	MaxAttachmentBytes int64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewRouter creates the web page router with all page routes registered.
func NewRouter(db *sql.DB, jwtSecret string, opts Options) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
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

	s := &Server{
		DB:        db,
		Templates: templates,
		JWTSecret: jwtSecret,
		Notifier:  opts.Notifier,
		MaxBytes:  opts.MaxAttachmentBytes,
		Now:       opts.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	r.Get("/login", s.LoginPage)
	r.Post("/login", s.LoginSubmit)
	r.Post("/logout", s.Logout)

	r.Group(func(r chi.Router) {
		r.Use(CookieAuthMiddleware(jwtSecret, db))

		r.Get("/", s.Dashboard)
		r.Get("/assets/transfers", s.TransfersPage)
		r.Post("/assets/transfers/accept", s.AcceptSubmit)
		r.Get("/assets/transfers/{id}/edit", s.TransferDetailPage)
		r.Post("/assets/transfers/{id}/approval", s.DecideSubmit)
		r.Post("/assets/transfers/{id}/resend/{kind}", s.ResendSubmit)
		r.Get("/assets/transfers/items/{id}/attachment", s.AttachmentGet)
	})

	return r, nil
}
