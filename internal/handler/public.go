package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"go.uber.org/zap"
)

// PublicMenuStore defines the database methods needed by the customer
// ordering page. Satisfied by *database.Queries; narrow interface for testability.
type PublicMenuStore interface {
	GetRestaurant(ctx context.Context, id uuid.UUID) (database.Restaurant, error)
	ListMenuItems(ctx context.Context, arg database.ListMenuItemsParams) ([]database.MenuItem, error)
}

// PublicHandler serves the unauthenticated ordering page reached from a
// table's QR code.
type PublicHandler struct {
	store PublicMenuStore
	svc   OrderServicer
	log   *zap.Logger
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(store PublicMenuStore, svc OrderServicer, log *zap.Logger) *PublicHandler {
	return &PublicHandler{store: store, svc: svc, log: log}
}

// RegisterRoutes registers public endpoints.
// Expected to be mounted at: /public/restaurants/{rid}
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.Menu)
	r.Post("/tables/{tid}/orders", h.PlaceOrder)
}

type publicMenuResponse struct {
	Restaurant string             `json:"restaurant"`
	Items      []menuItemResponse `json:"items"`
}

type publicOrderRequest struct {
	Items        []createOrderItemRequest `json:"items"`
	PromoCode    string                   `json:"promo_code"`
	Notes        string                   `json:"notes"`
	CustomerName string                   `json:"customer_name"`
}

// Menu returns the items a customer can order right now.
func (h *PublicHandler) Menu(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	restaurant, err := h.store.GetRestaurant(r.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "restaurant not found"})
			return
		}
		h.log.Error("get restaurant", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListMenuItems(r.Context(), database.ListMenuItemsParams{
		RestaurantID:  restaurantID,
		Category:      database.Text(r.URL.Query().Get("category")),
		AvailableOnly: true,
	})
	if err != nil {
		h.log.Error("list public menu", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := publicMenuResponse{
		Restaurant: restaurant.Name,
		Items:      make([]menuItemResponse, len(items)),
	}
	for i, it := range items {
		resp.Items[i] = toMenuItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaceOrder takes a dine-in order from a customer seated at the table.
// The order is OPEN and is settled by staff.
func (h *PublicHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	tableID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	var req publicOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq, msg := createOrderRequest{
		OrderType:    enum.OrderTypeDineIn,
		TableID:      tableID.String(),
		Items:        req.Items,
		PromoCode:    req.PromoCode,
		Notes:        req.Notes,
		CustomerName: req.CustomerName,
	}.toService(restaurantID)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	svcReq.Source = enum.OrderSourceCustomer
	svcReq.IdempotencyKey = r.Header.Get(IdempotencyHeader)

	result, err := h.svc.PlaceOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, h.log, "place customer order", err)
		return
	}

	code := http.StatusCreated
	if result.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, placeResultToResponse(result))
}
