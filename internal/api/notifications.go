package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/notify"
	"github.com/erazemk/assetflow/internal/store"
)

// NotificationsHandler handles notification resends for transfers.
type NotificationsHandler struct {
	DB       *sql.DB
	Notifier *notify.Service
}

// List handles GET /api/assets/transfers/{id}/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	transfer, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	if transfer == nil || !canView(GetClaims(r.Context()), transfer, nil) {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return
	}

	list, err := store.ListNotifications(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []store.Notification{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// ResendApproval handles POST /api/assets/transfers/{id}/resend-approval-notification.
func (h *NotificationsHandler) ResendApproval(w http.ResponseWriter, r *http.Request) {
	h.resend(w, r, model.NotifyApproval)
}

// ResendAcceptance handles POST /api/assets/transfers/{id}/resend-acceptance-notification.
func (h *NotificationsHandler) ResendAcceptance(w http.ResponseWriter, r *http.Request) {
	h.resend(w, r, model.NotifyAcceptance)
}

func (h *NotificationsHandler) resend(w http.ResponseWriter, r *http.Request, kind string) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	claims := GetClaims(r.Context())
	transfer, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	if transfer == nil || !canView(claims, transfer, nil) {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return
	}

	msg, err := h.Notifier.Resend(r.Context(), id, kind, claims.Username)
	if err != nil {
		var limited *notify.RateLimitError
		switch {
		case errors.As(err, &limited):
			secs := int(math.Ceil(limited.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			jsonError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, store.ErrNotFound):
			jsonError(w, http.StatusNotFound, "transfer not found")
		case errors.Is(err, notify.ErrNoRecipients):
			jsonError(w, http.StatusConflict, err.Error())
		case errors.Is(err, notify.ErrUnknownKind):
			jsonError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("failed to resend notification", "error", err, "transfer", id, "kind", kind)
			jsonError(w, http.StatusInternalServerError, "failed to resend notification")
		}
		return
	}

	slog.Info("notification resent", "user", claims.Username, "transfer", transfer.RequestNo,
		"kind", kind, "recipients", len(msg.Recipients))
	jsonResponse(w, http.StatusAccepted, msg)
}
