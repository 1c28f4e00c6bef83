package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/status"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrCodeSize = 256

// TableStore defines the database methods needed by table handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TableStore interface {
	ListTables(ctx context.Context, restaurantID uuid.UUID) ([]database.DiningTable, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.DiningTable, error)
	UpdateTable(ctx context.Context, arg database.UpdateTableParams) (database.DiningTable, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.DiningTable, error)
	SoftDeleteTable(ctx context.Context, arg database.SoftDeleteTableParams) (uuid.UUID, error)
}

// TableHandler handles dining table endpoints.
type TableHandler struct {
	store       TableStore
	pub         events.Publisher
	orderingURL string
	log         *zap.Logger
}

// NewTableHandler creates a new TableHandler. orderingURL is the customer
// ordering page the table QR codes point at.
func NewTableHandler(store TableStore, pub events.Publisher, orderingURL string, log *zap.Logger) *TableHandler {
	return &TableHandler{store: store, pub: pub, orderingURL: orderingURL, log: log}
}

// RegisterRoutes registers floor endpoints every staff role may use.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/tables
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Get("/{id}/qrcode", h.QRCode)
}

// RegisterManageRoutes registers floor plan edits. The caller restricts them
// to owners and managers.
func (h *TableHandler) RegisterManageRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type tableRequest struct {
	Number   int32 `json:"number"`
	Capacity int32 `json:"capacity"`
}

type tableStatusRequest struct {
	Status string `json:"status"`
}

type tableResponse struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toTableResponse(t database.DiningTable) tableResponse {
	return tableResponse{
		ID:           t.ID,
		RestaurantID: t.RestaurantID,
		Number:       t.Number,
		Capacity:     t.Capacity,
		Status:       t.Status,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// --- Handlers ---

// List returns the restaurant's tables ordered by number.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	tables, err := h.store.ListTables(r.Context(), restaurantID)
	if err != nil {
		h.log.Error("list tables", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single table.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	table, ok := h.loadTable(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Create adds a table. New tables start AVAILABLE.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Number <= 0 || req.Capacity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "number and capacity must be > 0"})
		return
	}

	table, err := h.store.CreateTable(r.Context(), database.CreateTableParams{
		RestaurantID: restaurantID,
		Number:       req.Number,
		Capacity:     req.Capacity,
	})
	if err != nil {
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table number already exists"})
			return
		}
		h.log.Error("create table", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionInsert, table)
	writeJSON(w, http.StatusCreated, toTableResponse(table))
}

// Update changes a table's number and capacity. Status is changed through
// UpdateStatus only.
func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Number <= 0 || req.Capacity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "number and capacity must be > 0"})
		return
	}

	table, err := h.store.UpdateTable(r.Context(), database.UpdateTableParams{
		Number:       req.Number,
		Capacity:     req.Capacity,
		ID:           tableID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		if isUniqueViolation(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table number already exists"})
			return
		}
		h.log.Error("update table", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionUpdate, table)
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// UpdateStatus moves a table along its status machine. The write only lands
// if the table is still in the status that was read.
func (h *TableHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req tableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	table, ok := h.loadTable(w, r)
	if !ok {
		return
	}

	if err := status.Transition(status.Table, table.Status, req.Status); err != nil {
		writeServiceError(w, h.log, "update table status", err)
		return
	}

	updated, err := h.store.UpdateTableStatus(r.Context(), database.UpdateTableStatusParams{
		Status:       req.Status,
		ID:           table.ID,
		RestaurantID: table.RestaurantID,
		Status_2:     table.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "table status changed concurrently, reload and retry"})
			return
		}
		h.log.Error("update table status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionUpdate, updated)
	writeJSON(w, http.StatusOK, toTableResponse(updated))
}

// Delete soft-deletes a table.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	_, err = h.store.SoftDeleteTable(r.Context(), database.SoftDeleteTableParams{
		ID:           tableID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		h.log.Error("delete table", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	publishChange(r.Context(), h.pub, h.log,
		events.NewChange(events.CollectionTables, events.ActionDelete, restaurantID, tableID, nil).ForTable(tableID))
	w.WriteHeader(http.StatusNoContent)
}

// QRCode returns a PNG linking to the customer ordering page for the table.
func (h *TableHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	table, ok := h.loadTable(w, r)
	if !ok {
		return
	}

	png, err := qrcode.Encode(h.orderingLink(table), qrcode.Medium, qrCodeSize)
	if err != nil {
		h.log.Error("encode table qr code", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// --- Helpers ---

func (h *TableHandler) loadTable(w http.ResponseWriter, r *http.Request) (database.DiningTable, bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return database.DiningTable{}, false
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return database.DiningTable{}, false
	}

	table, err := h.store.GetTable(r.Context(), database.GetTableParams{
		ID:           tableID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return database.DiningTable{}, false
		}
		h.log.Error("get table", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.DiningTable{}, false
	}
	return table, true
}

func (h *TableHandler) orderingLink(t database.DiningTable) string {
	q := url.Values{}
	q.Set("restaurant", t.RestaurantID.String())
	q.Set("table", t.ID.String())
	return h.orderingURL + "?" + q.Encode()
}

func (h *TableHandler) publish(ctx context.Context, action string, t database.DiningTable) {
	publishChange(ctx, h.pub, h.log,
		events.NewChange(events.CollectionTables, action, t.RestaurantID, t.ID, toTableResponse(t)).ForTable(t.ID))
}
