package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

// AssetsHandler handles asset, asset type and checklist endpoints.
type AssetsHandler struct {
	DB *sql.DB
}

type createAssetTypeRequest struct {
	Name string `json:"name"`
}

type createAssetRequest struct {
	RegisterNumber string `json:"register_number"`
	TypeID         int64  `json:"type_id"`
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	Owner          string `json:"owner"`
}

type createChecklistItemRequest struct {
	TypeID     int64  `json:"type_id"`
	Item       string `json:"item"`
	IsRequired bool   `json:"is_required"`
}

// ListTypes handles GET /api/assets/types.
func (h *AssetsHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := store.ListAssetTypes(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list asset types", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list asset types")
		return
	}
	if types == nil {
		types = []model.AssetType{}
	}
	jsonResponse(w, http.StatusOK, types)
}

// CreateType handles POST /api/assets/types.
func (h *AssetsHandler) CreateType(w http.ResponseWriter, r *http.Request) {
	var req createAssetTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	t, err := store.CreateAssetType(r.Context(), h.DB, req.Name)
	if err != nil {
		jsonError(w, http.StatusConflict, "asset type already exists")
		return
	}

	slog.Info("asset type created", "user", GetClaims(r.Context()).Username, "type", t.Name)
	jsonResponse(w, http.StatusCreated, t)
}

// List handles GET /api/assets, optionally filtered by ?owner=.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := store.ListAssets(r.Context(), h.DB, r.URL.Query().Get("owner"))
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	if assets == nil {
		assets = []model.Asset{}
	}
	jsonResponse(w, http.StatusOK, assets)
}

// Get handles GET /api/assets/{id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get asset", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get asset")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}
	jsonResponse(w, http.StatusOK, asset)
}

// Create handles POST /api/assets.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.RegisterNumber = strings.TrimSpace(req.RegisterNumber)
	if req.RegisterNumber == "" || req.TypeID <= 0 {
		jsonError(w, http.StatusBadRequest, "register_number and type_id required")
		return
	}

	typ, err := store.GetAssetType(r.Context(), h.DB, req.TypeID)
	if err != nil {
		slog.Error("failed to get asset type", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get asset type")
		return
	}
	if typ == nil {
		jsonError(w, http.StatusBadRequest, "unknown asset type")
		return
	}

	asset, err := store.CreateAsset(r.Context(), h.DB, req.RegisterNumber, req.TypeID, req.Brand, req.Model, req.Owner)
	if err != nil {
		jsonError(w, http.StatusConflict, "register number already exists")
		return
	}

	slog.Info("asset created", "user", GetClaims(r.Context()).Username,
		"asset", asset.RegisterNumber, "type", typ.Name, "owner", req.Owner)
	jsonResponse(w, http.StatusCreated, asset)
}

// ListChecklist handles GET /api/assets/transfer-checklist?type={typeId}.
func (h *AssetsHandler) ListChecklist(w http.ResponseWriter, r *http.Request) {
	typeID, err := strconv.ParseInt(r.URL.Query().Get("type"), 10, 64)
	if err != nil || typeID <= 0 {
		jsonError(w, http.StatusBadRequest, "type query parameter required")
		return
	}

	items, err := store.ListChecklist(r.Context(), h.DB, typeID)
	if err != nil {
		slog.Error("failed to list checklist", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list checklist")
		return
	}
	if items == nil {
		items = []model.ChecklistItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// CreateChecklistItem handles POST /api/assets/transfer-checklist.
func (h *AssetsHandler) CreateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req createChecklistItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Item = strings.TrimSpace(req.Item)
	if req.TypeID <= 0 || req.Item == "" {
		jsonError(w, http.StatusBadRequest, "type_id and item required")
		return
	}

	item, err := store.CreateChecklistItem(r.Context(), h.DB, req.TypeID, req.Item, req.IsRequired)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "unknown asset type")
		return
	}

	slog.Info("checklist item created", "user", GetClaims(r.Context()).Username,
		"type", req.TypeID, "item", item.Item, "required", item.IsRequired)
	jsonResponse(w, http.StatusCreated, item)
}

// DeleteChecklistItem handles DELETE /api/assets/transfer-checklist/{id}.
func (h *AssetsHandler) DeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid checklist item id")
		return
	}

	if err := store.DeleteChecklistItem(r.Context(), h.DB, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "checklist item not found")
			return
		}
		slog.Error("failed to delete checklist item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete checklist item")
		return
	}

	slog.Info("checklist item deleted", "user", GetClaims(r.Context()).Username, "item", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "checklist item deleted"})
}
