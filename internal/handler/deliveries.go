package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/service"
	"github.com/saffron-pos/api/internal/status"
	"go.uber.org/zap"
)

// DeliveryServicer defines the service methods needed by delivery handlers.
// Satisfied by *service.DeliveryService; narrow interface for testability.
type DeliveryServicer interface {
	AssignRider(ctx context.Context, restaurantID, deliveryID, riderID uuid.UUID) (*service.DeliveryResult, error)
	UpdateStatus(ctx context.Context, restaurantID, deliveryID uuid.UUID, next string) (*service.DeliveryResult, error)
}

// DeliveryStore defines the database methods needed by delivery read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type DeliveryStore interface {
	ListDeliveries(ctx context.Context, arg database.ListDeliveriesParams) ([]database.Delivery, error)
	GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error)
}

// DeliveryHandler handles delivery board endpoints.
type DeliveryHandler struct {
	svc           DeliveryServicer
	store         DeliveryStore
	lateThreshold time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler. Deliveries older than
// lateThreshold that are still in progress are flagged is_late.
func NewDeliveryHandler(svc DeliveryServicer, store DeliveryStore, lateThreshold time.Duration, log *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		svc:           svc,
		store:         store,
		lateThreshold: lateThreshold,
		now:           time.Now,
		log:           log,
	}
}

// RegisterRoutes registers delivery endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/deliveries
func (h *DeliveryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/assign", h.Assign)
}

// --- Request / Response types ---

type deliveryStatusRequest struct {
	Status string `json:"status"`
}

type assignRiderRequest struct {
	RiderID string `json:"rider_id"`
}

type deliveryResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	RiderID       *uuid.UUID `json:"rider_id"`
	Status        string     `json:"status"`
	Address       string     `json:"address"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	IsLate        bool       `json:"is_late"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DispatchedAt  *time.Time `json:"dispatched_at"`
	DeliveredAt   *time.Time `json:"delivered_at"`
}

type deliveryResultResponse struct {
	Delivery deliveryResponse `json:"delivery"`
	Rider    *riderResponse   `json:"rider,omitempty"`
}

// --- Handlers ---

// List handles GET /restaurants/{rid}/deliveries. Optional filters: status, rider_id.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	params := database.ListDeliveriesParams{
		RestaurantID: restaurantID,
		Status:       database.Text(r.URL.Query().Get("status")),
	}
	if s := r.URL.Query().Get("rider_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rider_id"})
			return
		}
		params.RiderID = pgtype.UUID{Bytes: id, Valid: true}
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), params)
	if err != nil {
		h.log.Error("list deliveries", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	now := h.now()
	resp := make([]deliveryResponse, len(deliveries))
	for i, d := range deliveries {
		resp[i] = toDeliveryResponse(d, status.IsLate(d.Status, d.CreatedAt, now, h.lateThreshold))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /restaurants/{rid}/deliveries/{id}.
func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	deliveryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery ID"})
		return
	}

	d, err := h.store.GetDelivery(r.Context(), database.GetDeliveryParams{
		ID:           deliveryID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "delivery not found"})
			return
		}
		h.log.Error("get delivery", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toDeliveryResponse(d, status.IsLate(d.Status, d.CreatedAt, h.now(), h.lateThreshold)))
}

// UpdateStatus moves a delivery one step along its status machine.
func (h *DeliveryHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	deliveryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery ID"})
		return
	}

	var req deliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	result, err := h.svc.UpdateStatus(r.Context(), restaurantID, deliveryID, req.Status)
	if err != nil {
		writeServiceError(w, h.log, "update delivery status", err)
		return
	}

	writeJSON(w, http.StatusOK, h.resultResponse(result))
}

// Assign dispatches a READY delivery with an ONLINE rider.
func (h *DeliveryHandler) Assign(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	deliveryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delivery ID"})
		return
	}

	var req assignRiderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	riderID, err := uuid.Parse(req.RiderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rider_id"})
		return
	}

	result, err := h.svc.AssignRider(r.Context(), restaurantID, deliveryID, riderID)
	if err != nil {
		writeServiceError(w, h.log, "assign rider", err)
		return
	}

	writeJSON(w, http.StatusOK, h.resultResponse(result))
}

// --- Helpers ---

func (h *DeliveryHandler) resultResponse(result *service.DeliveryResult) deliveryResultResponse {
	d := result.Delivery
	resp := deliveryResultResponse{
		Delivery: toDeliveryResponse(d, status.IsLate(d.Status, d.CreatedAt, h.now(), h.lateThreshold)),
	}
	if result.Rider != nil {
		rr := toRiderResponse(*result.Rider)
		resp.Rider = &rr
	}
	return resp
}

func toDeliveryResponse(d database.Delivery, late bool) deliveryResponse {
	return deliveryResponse{
		ID:            d.ID,
		OrderID:       d.OrderID,
		RiderID:       uuidPtr(d.RiderID),
		Status:        d.Status,
		Address:       d.Address,
		CustomerName:  d.CustomerName,
		CustomerPhone: d.CustomerPhone,
		IsLate:        late,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DispatchedAt:  timePtr(d.DispatchedAt),
		DeliveredAt:   timePtr(d.DeliveredAt),
	}
}
