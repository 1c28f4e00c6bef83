package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/status"
	"go.uber.org/zap"
)

// RiderStore defines the database methods needed by rider handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type RiderStore interface {
	ListRiders(ctx context.Context, arg database.ListRidersParams) ([]database.Rider, error)
	GetRider(ctx context.Context, arg database.GetRiderParams) (database.Rider, error)
	CreateRider(ctx context.Context, arg database.CreateRiderParams) (database.Rider, error)
	UpdateRider(ctx context.Context, arg database.UpdateRiderParams) (database.Rider, error)
	UpdateRiderStatus(ctx context.Context, arg database.UpdateRiderStatusParams) (database.Rider, error)
}

// RiderHandler handles rider endpoints.
type RiderHandler struct {
	store RiderStore
	pub   events.Publisher
	log   *zap.Logger
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(store RiderStore, pub events.Publisher, log *zap.Logger) *RiderHandler {
	return &RiderHandler{store: store, pub: pub, log: log}
}

// RegisterRoutes registers rider endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/riders
func (h *RiderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// RegisterManageRoutes registers roster edits for owners and managers.
func (h *RiderHandler) RegisterManageRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
}

// --- Request / Response types ---

type riderRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type riderStatusRequest struct {
	Status string `json:"status"`
}

type riderResponse struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRiderResponse(r database.Rider) riderResponse {
	return riderResponse{
		ID:           r.ID,
		RestaurantID: r.RestaurantID,
		Name:         r.Name,
		Phone:        r.Phone,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// --- Handlers ---

// List returns active riders, optionally filtered by ?status=.
func (h *RiderHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	riders, err := h.store.ListRiders(r.Context(), database.ListRidersParams{
		RestaurantID: restaurantID,
		Status:       database.Text(r.URL.Query().Get("status")),
	})
	if err != nil {
		h.log.Error("list riders", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]riderResponse, len(riders))
	for i, rd := range riders {
		resp[i] = toRiderResponse(rd)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single rider.
func (h *RiderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rider, ok := h.loadRider(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRiderResponse(rider))
}

// Create adds a rider. New riders start OFFLINE.
func (h *RiderHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	var req riderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	rider, err := h.store.CreateRider(r.Context(), database.CreateRiderParams{
		RestaurantID: restaurantID,
		Name:         req.Name,
		Phone:        req.Phone,
	})
	if err != nil {
		h.log.Error("create rider", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionInsert, rider)
	writeJSON(w, http.StatusCreated, toRiderResponse(rider))
}

// Update changes a rider's name and phone.
func (h *RiderHandler) Update(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	riderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rider ID"})
		return
	}

	var req riderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	rider, err := h.store.UpdateRider(r.Context(), database.UpdateRiderParams{
		Name:         req.Name,
		Phone:        req.Phone,
		ID:           riderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rider not found"})
			return
		}
		h.log.Error("update rider", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionUpdate, rider)
	writeJSON(w, http.StatusOK, toRiderResponse(rider))
}

// UpdateStatus lets a rider go ONLINE or OFFLINE. BUSY is only reached by
// being assigned a delivery.
func (h *RiderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req riderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if req.Status == enum.RiderStatusBusy {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "riders become BUSY by being assigned a delivery"})
		return
	}

	rider, ok := h.loadRider(w, r)
	if !ok {
		return
	}

	if err := status.Transition(status.Rider, rider.Status, req.Status); err != nil {
		writeServiceError(w, h.log, "update rider status", err)
		return
	}

	updated, err := h.store.UpdateRiderStatus(r.Context(), database.UpdateRiderStatusParams{
		Status:       req.Status,
		ID:           rider.ID,
		RestaurantID: rider.RestaurantID,
		Status_2:     rider.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "rider status changed concurrently, reload and retry"})
			return
		}
		h.log.Error("update rider status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.publish(r.Context(), events.ActionUpdate, updated)
	writeJSON(w, http.StatusOK, toRiderResponse(updated))
}

// --- Helpers ---

func (h *RiderHandler) loadRider(w http.ResponseWriter, r *http.Request) (database.Rider, bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return database.Rider{}, false
	}

	riderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rider ID"})
		return database.Rider{}, false
	}

	rider, err := h.store.GetRider(r.Context(), database.GetRiderParams{
		ID:           riderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "rider not found"})
			return database.Rider{}, false
		}
		h.log.Error("get rider", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.Rider{}, false
	}
	return rider, true
}

func (h *RiderHandler) publish(ctx context.Context, action string, rd database.Rider) {
	publishChange(ctx, h.pub, h.log,
		events.NewChange(events.CollectionRiders, action, rd.RestaurantID, rd.ID, toRiderResponse(rd)))
}
