package web

import (
	"database/sql"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/assetflow/internal/acceptance"
	"github.com/erazemk/assetflow/internal/auth"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/notify"
	"github.com/erazemk/assetflow/internal/transfers"
	webembed "github.com/erazemk/assetflow/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"roleAtLeast": model.RoleAtLeast,
		"roleName": func(role string) string {
			switch role {
			case model.RoleAdmin:
				return "Administrator"
			case model.RoleManager:
				return "Asset manager"
			case model.RoleUser:
				return "Employee"
			default:
				return role
			}
		},
		"statusName": func(status transfers.Status) string {
			switch status {
			case transfers.StatusPendingApproval:
				return "Pending approval"
			case transfers.StatusPendingAcceptance:
				return "Pending acceptance"
			case transfers.StatusAccepted:
				return "Accepted"
			case transfers.StatusRejected:
				return "Rejected"
			default:
				return string(status)
			}
		},
		"stateName": func(state acceptance.State) string {
			switch state {
			case acceptance.StateAwaitingApproval:
				return "Awaiting approval"
			case acceptance.StatePendingAcceptance:
				return "Pending acceptance"
			case acceptance.StateAccepted:
				return "Accepted"
			default:
				return "Not found"
			}
		},
		"ownerID": func(e *model.Employee) string {
			if e == nil {
				return ""
			}
			return e.RamcoID
		},
	}
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates() (*Templates, error) {
	tfs := webembed.TemplatesFS()

	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	pages := []string{
		"login.html",
		"dashboard.html",
		"transfers.html",
		"transfer_detail.html",
	}

	ts := &Templates{templates: make(map[string]*template.Template)}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given data.
func (ts *Templates) Render(w http.ResponseWriter, name string, data any) {
	ts.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders a template with the given status code.
func (ts *Templates) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the base data passed to all templates.
type PageData struct {
	Title   string
	User    *auth.Claims
	Error   string
	Success string
}

// Server holds all dependencies for page handlers.
type Server struct {
	DB        *sql.DB
	Templates *Templates
	JWTSecret string
	Notifier  *notify.Service
	MaxBytes  int64
	Now       func() time.Time
}
