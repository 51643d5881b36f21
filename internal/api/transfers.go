package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/assetflow/internal/auth"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	DB  *sql.DB
	Now func() time.Time
}

type createTransferRequest struct {
	Items []store.NewTransferItem `json:"items"`
}

type decideTransferRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

// List handles GET /api/assets/transfers. ?ramco= selects transfers the
// user initiated and ?new_owner= transfers with items for the user; nested
// items are then limited to that user's. Users other than managers may
// only list their own.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	q := r.URL.Query()
	f := store.TransferFilter{
		Initiator: strings.TrimSpace(q.Get("ramco")),
		NewOwner:  strings.TrimSpace(q.Get("new_owner")),
	}

	if !isManager(claims) {
		if f.Initiator == "" && f.NewOwner == "" {
			f.Initiator = claims.Username
		}
		if (f.Initiator != "" && f.Initiator != claims.Username) || (f.NewOwner != "" && f.NewOwner != claims.Username) {
			jsonError(w, http.StatusForbidden, "cannot list other users' transfers")
			return
		}
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list transfers", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Create handles POST /api/assets/transfers. Users may only transfer
// assets they hold; managers may transfer any asset.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		jsonError(w, http.StatusBadRequest, "at least one item required")
		return
	}
	for _, it := range req.Items {
		if it.EffectiveDate != "" && !model.ValidDate(it.EffectiveDate) {
			jsonError(w, http.StatusBadRequest, "invalid effective_date")
			return
		}
	}

	claims := GetClaims(r.Context())
	holder := claims.Username
	if isManager(claims) {
		holder = ""
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, claims.Username, holder, req.Items, h.Now())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAssetNotOwned):
			jsonError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, store.ErrAssetInTransfer):
			jsonError(w, http.StatusConflict, err.Error())
		default:
			jsonError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	slog.Info("transfer created", "user", claims.Username,
		"transfer", transfer.RequestNo, "items", len(transfer.Items))
	jsonResponse(w, http.StatusCreated, transfer)
}

// Get handles GET /api/assets/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	jsonResponse(w, http.StatusOK, transfer)
}

// GetItem handles GET /api/assets/transfers/{id}/items/{itemId}.
func (h *TransfersHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	transferID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}
	itemID, ok := pathID(r, "itemId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	transfer, err := store.GetTransfer(r.Context(), h.DB, transferID)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	var item *model.TransferItem
	if transfer != nil {
		for i := range transfer.Items {
			if transfer.Items[i].ID == itemID {
				item = &transfer.Items[i]
			}
		}
	}
	if item == nil || !canView(GetClaims(r.Context()), transfer, item) {
		jsonError(w, http.StatusNotFound, "transfer item not found")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Decide handles PUT /api/assets/transfers/{id}/approval.
func (h *TransfersHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	var req decideTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.ApprovalApproved && req.Status != model.ApprovalRejected {
		jsonError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	claims := GetClaims(r.Context())
	existing, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get transfer")
		return
	}
	if existing == nil {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return
	}
	if existing.TransferBy == claims.Username && claims.Role != model.RoleAdmin {
		jsonError(w, http.StatusForbidden, "cannot decide your own transfer")
		return
	}

	transfer, err := store.DecideTransfer(r.Context(), h.DB, id, req.Status, claims.Username, req.Remarks, h.Now())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			jsonError(w, http.StatusNotFound, "transfer not found")
		case errors.Is(err, store.ErrAlreadyDecided):
			jsonError(w, http.StatusConflict, err.Error())
		default:
			slog.Error("failed to decide transfer", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to decide transfer")
		}
		return
	}

	slog.Info("transfer decided", "user", claims.Username, "transfer", transfer.RequestNo, "status", req.Status)
	jsonResponse(w, http.StatusOK, transfer)
}

// canView reports whether claims may see transfer, or only item of it when
// item is non-nil.
func canView(claims *auth.Claims, transfer *model.Transfer, item *model.TransferItem) bool {
	return isManager(claims) || transfer.Involves(claims.Username, item)
}
