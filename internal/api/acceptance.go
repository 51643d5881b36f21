package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/assetflow/internal/attachment"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

// AcceptanceHandler handles acceptance of transfer items by their new owner.
type AcceptanceHandler struct {
	DB       *sql.DB
	MaxBytes int64
	Now      func() time.Time
}

type acceptRequest struct {
	ChecklistItems string `json:"checklist-items"`
	AcceptanceBy   string `json:"acceptance_by"`
	AcceptanceDate string `json:"acceptance_date"`
	Remarks        string `json:"acceptance_remarks"`
}

// Accept handles PUT /api/assets/transfers/{id}/acceptance, where id is the
// transfer item. The body is JSON, or a multipart form with the same fields
// and an optional acceptance_attachments file.
func (h *AcceptanceHandler) Accept(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer item id")
		return
	}

	var req acceptRequest
	var att *store.Attachment

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		// Multipart overhead on top of the attachment itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes+1<<20)
		if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
			jsonError(w, http.StatusRequestEntityTooLarge, "file too large or invalid multipart form")
			return
		}
		req = acceptRequest{
			ChecklistItems: r.FormValue("checklist-items"),
			AcceptanceBy:   r.FormValue("acceptance_by"),
			AcceptanceDate: r.FormValue("acceptance_date"),
			Remarks:        r.FormValue("acceptance_remarks"),
		}

		file, header, err := r.FormFile("acceptance_attachments")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			jsonError(w, http.StatusBadRequest, "invalid attachment")
			return
		default:
			defer file.Close()
			res, err := attachment.Process(file, header.Filename, h.MaxBytes)
			if err != nil {
				switch {
				case errors.Is(err, attachment.ErrTooLarge):
					jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
				case errors.Is(err, attachment.ErrUnsupported):
					jsonError(w, http.StatusUnsupportedMediaType, "attachment must be JPEG, PNG or PDF")
				default:
					jsonError(w, http.StatusBadRequest, err.Error())
				}
				return
			}
			att = &store.Attachment{Name: res.Name, MIME: res.MIME, Data: res.Data}
		}
	} else if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	checked, err := model.DecodeChecklistIDs(req.ChecklistItems)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "checklist-items must be comma separated ids")
		return
	}

	claims := GetClaims(r.Context())
	if by := strings.TrimSpace(req.AcceptanceBy); by != "" && by != claims.Username {
		jsonError(w, http.StatusForbidden, "acceptance_by must be the signed in user")
		return
	}

	item, err := store.AcceptItem(r.Context(), h.DB, store.Acceptance{
		ItemID:       itemID,
		AcceptedBy:   claims.Username,
		Date:         req.AcceptanceDate,
		ChecklistIDs: checked,
		Remarks:      req.Remarks,
		Attachment:   att,
	}, h.Now())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			jsonError(w, http.StatusNotFound, "transfer item not found")
		case errors.Is(err, store.ErrAlreadyAccepted), errors.Is(err, store.ErrNotActionable):
			jsonError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotNewOwner):
			jsonError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, store.ErrChecklistMissing), errors.Is(err, store.ErrChecklistUnknown):
			jsonError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			slog.Error("failed to accept transfer item", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to accept transfer item")
		}
		return
	}

	slog.Info("transfer item accepted", "user", claims.Username, "item", item.ID,
		"asset", item.Asset.RegisterNumber, "attachment", att != nil)
	jsonResponse(w, http.StatusOK, item)
}

// Attachment handles GET /api/assets/transfers/{id}/acceptance/attachment.
func (h *AcceptanceHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer item id")
		return
	}

	item, err := store.GetTransferItemByID(r.Context(), h.DB, itemID)
	if err != nil {
		slog.Error("failed to get transfer item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "transfer item not found")
		return
	}
	transfer, err := store.GetTransfer(r.Context(), h.DB, item.TransferID)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	if transfer == nil || !canView(GetClaims(r.Context()), transfer, item) {
		jsonError(w, http.StatusNotFound, "transfer item not found")
		return
	}

	att, err := store.GetAcceptanceAttachment(r.Context(), h.DB, itemID)
	if err != nil {
		slog.Error("failed to get attachment", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get attachment")
		return
	}
	if att == nil {
		jsonError(w, http.StatusNotFound, "no attachment")
		return
	}

	w.Header().Set("Content-Type", att.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", att.Name))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(att.Data)
}
