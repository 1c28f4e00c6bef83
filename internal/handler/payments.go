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
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/service"
	"github.com/saffron-pos/api/internal/split"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementServicer defines the service methods needed by payment handlers.
// Satisfied by *service.SettlementService; narrow interface for testability.
type SettlementServicer interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
	CreateSplits(ctx context.Context, req service.SplitRequest) (*service.SplitResult, error)
	SettleSplit(ctx context.Context, req service.SettleSplitRequest) (*service.SettleSplitResult, error)
}

// PaymentStore defines the database methods needed by payment read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PaymentStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// PaymentHandler handles payment and split-bill endpoints.
type PaymentHandler struct {
	svc   SettlementServicer
	store PaymentStore
	log   *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc SettlementServicer, store PaymentStore, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes registers payment endpoints on the orders router.
// Expected to be mounted inside: /restaurants/{rid}/orders
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.List)
	r.Post("/{id}/payments", h.Settle)
	r.Post("/{id}/splits", h.CreateSplits)
	r.Post("/{id}/splits/{pid}/settle", h.SettleSplit)
}

// --- Request / Response types ---

type tenderRequest struct {
	PaymentMethod  string `json:"payment_method"`
	AmountTendered string `json:"amount_tendered"`
}

type splitRequest struct {
	Mode        string         `json:"mode"`
	Count       int            `json:"count"`
	Amounts     []string       `json:"amounts"`
	Assignments map[string]int `json:"assignments"`
}

type paymentResponse struct {
	ID           uuid.UUID  `json:"id"`
	OrderID      uuid.UUID  `json:"order_id"`
	SplitIndex   *int32     `json:"split_index"`
	Method       *string    `json:"payment_method"`
	Amount       string     `json:"amount"`
	Tendered     string     `json:"amount_tendered"`
	ChangeAmount string     `json:"change_amount"`
	Status       string     `json:"status"`
	ProcessedBy  *uuid.UUID `json:"processed_by"`
	ProcessedAt  *time.Time `json:"processed_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type settleResponse struct {
	Order   orderResponse   `json:"order"`
	Payment paymentResponse `json:"payment"`
	Change  string          `json:"change"`
}

type shareResponse struct {
	Index    int         `json:"index"`
	Subtotal string      `json:"subtotal"`
	Tax      string      `json:"tax"`
	Discount string      `json:"discount"`
	Amount   string      `json:"amount"`
	LineIDs  []uuid.UUID `json:"line_ids,omitempty"`
}

type splitResponse struct {
	Order    orderResponse     `json:"order"`
	Shares   []shareResponse   `json:"shares"`
	Payments []paymentResponse `json:"payments"`
}

type settleSplitResponse struct {
	Order     orderResponse   `json:"order"`
	Payment   paymentResponse `json:"payment"`
	Remaining int             `json:"remaining"`
}

// --- Handlers ---

// List returns every payment recorded against an order, splits included.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	// Scope check: the order must belong to this restaurant.
	if _, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, RestaurantID: restaurantID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		h.log.Error("get order", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), orderID)
	if err != nil {
		h.log.Error("list payments", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = dbPaymentToResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Settle pays an open order in full. Cash needs amount_tendered >= total.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req tenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tender, msg := req.toTender()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	result, err := h.svc.Settle(r.Context(), service.SettleRequest{
		RestaurantID: restaurantID,
		OrderID:      orderID,
		ProcessedBy:  claims.StaffID,
		Tender:       tender,
	})
	if err != nil {
		writeServiceError(w, h.log, "settle order", err)
		return
	}

	writeJSON(w, http.StatusCreated, settleResultToResponse(result))
}

// CreateSplits divides an open order into pending payments.
//
// Modes:
//   - EQUAL: {"mode":"EQUAL","count":3}
//   - AMOUNT: {"mode":"AMOUNT","amounts":["1000.00","1297.00"]}
//   - ITEMS: {"mode":"ITEMS","count":2,"assignments":{"<order_item_id>":0}}
func (h *PaymentHandler) CreateSplits(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.SplitRequest{
		RestaurantID: restaurantID,
		OrderID:      orderID,
		Mode:         req.Mode,
		Count:        req.Count,
	}
	for i, s := range req.Amounts {
		d, err := decimal.NewFromString(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "invalid amount")})
			return
		}
		svcReq.Amounts = append(svcReq.Amounts, d)
	}
	if len(req.Assignments) > 0 {
		svcReq.Assignment = make(map[uuid.UUID]int, len(req.Assignments))
		for k, payer := range req.Assignments {
			id, err := uuid.Parse(k)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order item ID in assignments"})
				return
			}
			svcReq.Assignment[id] = payer
		}
	}

	result, err := h.svc.CreateSplits(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, h.log, "create splits", err)
		return
	}

	resp := splitResponse{
		Order:    dbOrderToResponse(result.Order),
		Shares:   make([]shareResponse, len(result.Shares)),
		Payments: make([]paymentResponse, len(result.Payments)),
	}
	for i, sh := range result.Shares {
		resp.Shares[i] = toShareResponse(sh)
	}
	for i, p := range result.Payments {
		resp.Payments[i] = dbPaymentToResponse(p)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// SettleSplit pays one pending split. The order becomes PAID with the last one.
func (h *PaymentHandler) SettleSplit(w http.ResponseWriter, r *http.Request) {
	restaurantID, orderID, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "pid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req tenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tender, msg := req.toTender()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	result, err := h.svc.SettleSplit(r.Context(), service.SettleSplitRequest{
		RestaurantID: restaurantID,
		OrderID:      orderID,
		PaymentID:    paymentID,
		ProcessedBy:  claims.StaffID,
		Tender:       tender,
	})
	if err != nil {
		writeServiceError(w, h.log, "settle split", err)
		return
	}

	writeJSON(w, http.StatusOK, settleSplitResponse{
		Order:     dbOrderToResponse(result.Order),
		Payment:   dbPaymentToResponse(result.Payment),
		Remaining: result.Remaining,
	})
}

// --- Helpers ---

func parseOrderPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return restaurantID, orderID, true
}

func (req tenderRequest) toTender() (service.Tender, string) {
	if req.PaymentMethod == "" {
		return service.Tender{}, "payment_method is required"
	}
	t := service.Tender{Method: req.PaymentMethod}
	if req.AmountTendered != "" {
		d, err := decimal.NewFromString(req.AmountTendered)
		if err != nil {
			return service.Tender{}, "invalid amount_tendered"
		}
		if d.IsNegative() {
			return service.Tender{}, "amount_tendered must be >= 0"
		}
		t.Tendered = d
	}
	return t, ""
}

func settleResultToResponse(result *service.SettleResult) settleResponse {
	order := dbOrderToResponse(result.Order)
	if len(result.Items) > 0 {
		order.Items = toOrderItemResponses(result.Items)
	}
	if result.Delivery != nil {
		d := toDeliveryResponse(*result.Delivery, false)
		order.Delivery = &d
	}
	payment := dbPaymentToResponse(result.Payment)
	return settleResponse{
		Order:   order,
		Payment: payment,
		Change:  payment.ChangeAmount,
	}
}

func toShareResponse(sh split.Share) shareResponse {
	return shareResponse{
		Index:    sh.Index,
		Subtotal: sh.Subtotal.StringFixed(2),
		Tax:      sh.Tax.StringFixed(2),
		Discount: sh.Discount.StringFixed(2),
		Amount:   sh.Amount.StringFixed(2),
		LineIDs:  sh.LineIDs,
	}
}

func dbPaymentToResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:           p.ID,
		OrderID:      p.OrderID,
		Method:       textPtr(p.Method),
		Amount:       numericToString(p.Amount),
		Tendered:     numericToString(p.Tendered),
		ChangeAmount: numericToString(p.ChangeAmount),
		Status:       p.Status,
		ProcessedBy:  uuidPtr(p.ProcessedBy),
		ProcessedAt:  timePtr(p.ProcessedAt),
		CreatedAt:    p.CreatedAt,
	}
	if p.SplitIndex.Valid {
		idx := p.SplitIndex.Int32
		resp.SplitIndex = &idx
	}
	return resp
}
