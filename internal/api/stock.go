package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/stock"
	"github.com/erazemk/assetflow/internal/store"
)

// StockHandler handles purchases, stock units and stock requests.
type StockHandler struct {
	DB  *sql.DB
	Now func() time.Time
}

type createStockRequestRequest struct {
	Lines []store.NewStockRequestLine `json:"lines"`
}

type allocateSerialRequest struct {
	Serial string `json:"serial"`
}

type approvedQtyRequest struct {
	ApprovedQty int `json:"approved_qty"`
}

// ListUnits handles GET /api/stock/units?item=&status=.
func (h *StockHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	item := strings.TrimSpace(r.URL.Query().Get("item"))
	if item == "" {
		jsonError(w, http.StatusBadRequest, "item is required")
		return
	}
	status := r.URL.Query().Get("status")
	if status != "" && status != model.UnitInStock && status != model.UnitAllocated {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	units, err := store.ListStockUnits(r.Context(), h.DB, item, status)
	if err != nil {
		slog.Error("failed to list stock units", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list stock units")
		return
	}
	if units == nil {
		units = []model.StockUnit{}
	}
	jsonResponse(w, http.StatusOK, units)
}

// CreatePurchase handles POST /api/stock/purchases.
func (h *StockHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req model.Purchase
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Supplier) == "" || len(req.Lines) == 0 {
		jsonError(w, http.StatusBadRequest, "supplier and at least one line required")
		return
	}

	claims := GetClaims(r.Context())
	req.PurchasedBy = claims.Username

	p, err := store.CreatePurchase(r.Context(), h.DB, req, h.Now())
	if err != nil {
		if isStockError(err) {
			jsonError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("failed to create purchase", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create purchase")
		return
	}

	slog.Info("purchase recorded", "user", claims.Username, "purchase", p.ID, "total", p.Total.StringFixed(2))
	jsonResponse(w, http.StatusCreated, p)
}

// GetPurchase handles GET /api/stock/purchases/{id}.
func (h *StockHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid purchase id")
		return
	}

	p, err := store.GetPurchase(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get purchase", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get purchase")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "purchase not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// CreateRequest handles POST /api/stock/requests.
func (h *StockHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createStockRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Lines) == 0 {
		jsonError(w, http.StatusBadRequest, "at least one line required")
		return
	}

	claims := GetClaims(r.Context())
	sr, err := store.CreateStockRequest(r.Context(), h.DB, claims.Username, req.Lines, h.Now())
	if err != nil {
		if isStockError(err) {
			jsonError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		slog.Error("failed to create stock request", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create stock request")
		return
	}

	slog.Info("stock request created", "user", claims.Username, "request", sr.ID, "lines", len(sr.Lines))
	jsonResponse(w, http.StatusCreated, sr)
}

// GetRequest handles GET /api/stock/requests/{id}.
func (h *StockHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock request id")
		return
	}

	sr, err := store.GetStockRequest(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get stock request", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get stock request")
		return
	}
	claims := GetClaims(r.Context())
	if sr == nil || (!isManager(claims) && sr.RequestedBy != claims.Username) {
		jsonError(w, http.StatusNotFound, "stock request not found")
		return
	}
	jsonResponse(w, http.StatusOK, sr)
}

// AllocateSerial handles POST /api/stock/requests/{id}/lines/{lineId}/serials.
func (h *StockHandler) AllocateSerial(w http.ResponseWriter, r *http.Request) {
	requestID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	var req allocateSerialRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Serial = strings.TrimSpace(req.Serial)
	if req.Serial == "" {
		jsonError(w, http.StatusBadRequest, "serial is required")
		return
	}

	sr, err := store.AllocateSerial(r.Context(), h.DB, requestID, lineID, req.Serial)
	if err != nil {
		h.lineError(w, err, "failed to allocate serial")
		return
	}

	slog.Info("serial allocated", "user", GetClaims(r.Context()).Username,
		"request", requestID, "line", lineID, "serial", req.Serial)
	jsonResponse(w, http.StatusOK, sr)
}

// SetApprovedQty handles PUT /api/stock/requests/{id}/lines/{lineId}/approved-qty.
func (h *StockHandler) SetApprovedQty(w http.ResponseWriter, r *http.Request) {
	requestID, lineID, ok := h.lineIDs(w, r)
	if !ok {
		return
	}

	var req approvedQtyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sr, err := store.SetApprovedQty(r.Context(), h.DB, requestID, lineID, req.ApprovedQty)
	if err != nil {
		h.lineError(w, err, "failed to set approved quantity")
		return
	}

	slog.Info("approved quantity set", "user", GetClaims(r.Context()).Username,
		"request", requestID, "line", lineID, "qty", req.ApprovedQty)
	jsonResponse(w, http.StatusOK, sr)
}

func (h *StockHandler) lineIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	requestID, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid stock request id")
		return 0, 0, false
	}
	lineID, ok := pathID(r, "lineId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid line id")
		return 0, 0, false
	}
	return requestID, lineID, true
}

func (h *StockHandler) lineError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "stock request line not found")
	case isStockError(err):
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error(msg, "error", err)
		jsonError(w, http.StatusInternalServerError, msg)
	}
}

func isStockError(err error) bool {
	for _, target := range []error{
		stock.ErrAllocationFull,
		stock.ErrSerialNotInStock,
		stock.ErrSerialAllocated,
		stock.ErrItemMismatch,
		stock.ErrApprovedTooHigh,
		stock.ErrApprovedOverSerial,
		stock.ErrInvalidQuantity,
		stock.ErrInvalidLine,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
