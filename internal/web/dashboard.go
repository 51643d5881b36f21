package web

import (
	"net/http"

	"github.com/erazemk/assetflow/internal/transfers"
)

// recentLimit caps the transfers listed on the dashboard.
const recentLimit = 10

// Dashboard handles GET /.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r, s.backend(r))
	page := s.transfersPage(r, ctrl, nil)

	var waiting []rowView
	for _, row := range page.Incoming {
		if row.Status == transfers.StatusPendingAcceptance {
			waiting = append(waiting, row)
		}
	}
	recent := page.Initiated
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}

	page.Title = "Dashboard"
	s.Templates.Render(w, "dashboard.html", &struct {
		*transfersPage
		Waiting []rowView
		Recent  []transferView
	}{
		transfersPage: page,
		Waiting:       waiting,
		Recent:        recent,
	})
}
