package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client's key for safely retrying order
// submissions.
const IdempotencyHeader = "Idempotency-Key"

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
}

// OrderCanceller cancels open orders.
// Satisfied by *service.SettlementService.
type OrderCanceller interface {
	Cancel(ctx context.Context, restaurantID, orderID uuid.UUID) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	canceler OrderCanceller
	store    OrderStore
	log      *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, canceler OrderCanceller, store OrderStore, log *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, canceler: canceler, store: store, log: log}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/bill", h.Bill)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType       string                   `json:"order_type"`
	TableID         string                   `json:"table_id"`
	Items           []createOrderItemRequest `json:"items"`
	PromoCode       string                   `json:"promo_code"`
	DiscountAmount  string                   `json:"discount_amount"`
	Notes           string                   `json:"notes"`
	CustomerName    string                   `json:"customer_name"`
	CustomerPhone   string                   `json:"customer_phone"`
	DeliveryAddress string                   `json:"delivery_address"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	RestaurantID    uuid.UUID           `json:"restaurant_id"`
	OrderNumber     string              `json:"order_number"`
	OrderType       string              `json:"order_type"`
	Source          string              `json:"source"`
	TableID         *uuid.UUID          `json:"table_id"`
	Status          string              `json:"status"`
	Subtotal        string              `json:"subtotal"`
	TaxRate         string              `json:"tax_rate"`
	TaxAmount       string              `json:"tax_amount"`
	DiscountSource  *string             `json:"discount_source"`
	PromoCode       *string             `json:"promo_code"`
	DiscountAmount  string              `json:"discount_amount"`
	TotalAmount     string              `json:"total_amount"`
	Notes           *string             `json:"notes"`
	CustomerName    *string             `json:"customer_name"`
	CustomerPhone   *string             `json:"customer_phone"`
	DeliveryAddress *string             `json:"delivery_address"`
	CreatedBy       *uuid.UUID          `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	PaidAt          *time.Time          `json:"paid_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
	Payments        []paymentResponse   `json:"payments,omitempty"`
	Delivery        *deliveryResponse   `json:"delivery,omitempty"`
}

type orderItemResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int32     `json:"quantity"`
	Notes      *string   `json:"notes"`
	Subtotal   string    `json:"subtotal"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type billResponse struct {
	Order      orderResponse `json:"order"`
	Subtotal   string        `json:"subtotal"`
	Tax        string        `json:"tax"`
	Discount   string        `json:"discount"`
	Total      string        `json:"total"`
	AmountPaid string        `json:"amount_paid"`
	BalanceDue string        `json:"balance_due"`
}

// --- Handlers ---

// Create places an order taken by staff. A repeated request carrying the same
// Idempotency-Key returns the original order with 200 instead of 201.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq, msg := req.toService(restaurantID)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	svcReq.CreatedBy = claims.StaffID
	svcReq.Source = enum.OrderSourceStaff
	svcReq.IdempotencyKey = r.Header.Get(IdempotencyHeader)

	result, err := h.svc.PlaceOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, h.log, "place order", err)
		return
	}

	code := http.StatusCreated
	if result.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, placeResultToResponse(result))
}

// List handles GET /restaurants/{rid}/orders. Filters: status, type,
// table_id, start_date and end_date (YYYY-MM-DD, inclusive).
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	q := r.URL.Query()

	limit := 20
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		RestaurantID: restaurantID,
		Status:       database.Text(q.Get("status")),
		OrderType:    database.Text(q.Get("type")),
		Limit:        int32(limit),
		Offset:       int32(offset),
	}

	if s := q.Get("table_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
			return
		}
		params.TableID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.AddDate(0, 0, 1), Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		h.log.Error("list orders", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /restaurants/{rid}/orders/{id}: the order with its lines
// and payments.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.loadOrderDetail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Bill returns the stored pricing of an order with what has been paid so far.
func (h *OrderHandler) Bill(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrderDetail(w, r)
	if !ok {
		return
	}

	total, _ := decimal.NewFromString(order.TotalAmount)
	paid := decimal.Zero
	for _, p := range order.Payments {
		if p.Status == enum.PaymentStatusCompleted {
			amount, _ := decimal.NewFromString(p.Amount)
			paid = paid.Add(amount)
		}
	}
	due := total.Sub(paid)
	if due.IsNegative() {
		due = decimal.Zero
	}

	writeJSON(w, http.StatusOK, billResponse{
		Order:      order,
		Subtotal:   order.Subtotal,
		Tax:        order.TaxAmount,
		Discount:   order.DiscountAmount,
		Total:      order.TotalAmount,
		AmountPaid: paid.StringFixed(2),
		BalanceDue: due.StringFixed(2),
	})
}

// Cancel handles DELETE /restaurants/{rid}/orders/{id}. Only OPEN orders
// without completed payments can be cancelled.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.canceler.Cancel(r.Context(), restaurantID, orderID)
	if err != nil {
		writeServiceError(w, h.log, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(order))
}

// --- Helpers ---

const dateLayout = "2006-01-02"

func (h *OrderHandler) loadOrderDetail(w http.ResponseWriter, r *http.Request) (orderResponse, bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return orderResponse{}, false
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return orderResponse{}, false
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:           orderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return orderResponse{}, false
		}
		h.log.Error("get order", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return orderResponse{}, false
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		h.log.Error("list order items", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return orderResponse{}, false
	}

	payments, err := h.store.ListPaymentsByOrder(r.Context(), order.ID)
	if err != nil {
		h.log.Error("list payments", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return orderResponse{}, false
	}

	resp := dbOrderToResponse(order)
	resp.Items = toOrderItemResponses(items)
	resp.Payments = make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp.Payments[i] = dbPaymentToResponse(p)
	}
	return resp, true
}

// toService validates the request shape and converts it. The returned
// message is non-empty when the request is malformed.
func (req createOrderRequest) toService(restaurantID uuid.UUID) (service.PlaceOrderRequest, string) {
	if req.OrderType == "" {
		return service.PlaceOrderRequest{}, "order_type is required"
	}
	if len(req.Items) == 0 {
		return service.PlaceOrderRequest{}, "items are required"
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, item := range req.Items {
		if item.MenuItemID == "" {
			return service.PlaceOrderRequest{}, formatItemError(i, "menu_item_id is required")
		}
		id, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return service.PlaceOrderRequest{}, formatItemError(i, "invalid menu_item_id")
		}
		if item.Quantity <= 0 {
			return service.PlaceOrderRequest{}, formatItemError(i, "quantity must be > 0")
		}
		items[i] = service.PlaceOrderItem{MenuItemID: id, Quantity: item.Quantity, Notes: item.Notes}
	}

	discount, msg := parseDiscount(req.PromoCode, req.DiscountAmount)
	if msg != "" {
		return service.PlaceOrderRequest{}, msg
	}

	out := service.PlaceOrderRequest{
		RestaurantID:    restaurantID,
		OrderType:       req.OrderType,
		Items:           items,
		Discount:        discount,
		Notes:           req.Notes,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
	}
	if req.TableID != "" {
		id, err := uuid.Parse(req.TableID)
		if err != nil {
			return service.PlaceOrderRequest{}, "invalid table_id"
		}
		out.TableID = &id
	}
	return out, ""
}

// parseDiscount accepts at most one of a promo code and a manual amount.
func parseDiscount(promoCode, amount string) (service.DiscountRequest, string) {
	switch {
	case promoCode != "" && amount != "":
		return service.DiscountRequest{}, "promo_code and discount_amount cannot be combined"
	case promoCode != "":
		return service.DiscountRequest{Source: enum.DiscountSourcePromo, PromoCode: promoCode}, ""
	case amount != "":
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return service.DiscountRequest{}, "invalid discount_amount"
		}
		if d.IsNegative() {
			return service.DiscountRequest{}, "discount_amount must be >= 0"
		}
		return service.DiscountRequest{Source: enum.DiscountSourceManual, Amount: d}, ""
	}
	return service.DiscountRequest{}, ""
}

func formatItemError(idx int, msg string) string {
	return fmt.Sprintf("items[%d]: %s", idx, msg)
}

func placeResultToResponse(result *service.PlaceOrderResult) orderResponse {
	resp := dbOrderToResponse(result.Order)
	resp.Items = toOrderItemResponses(result.Items)
	if result.Delivery != nil {
		d := toDeliveryResponse(*result.Delivery, false)
		resp.Delivery = &d
	}
	return resp
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		RestaurantID:    o.RestaurantID,
		OrderNumber:     o.OrderNumber,
		OrderType:       o.OrderType,
		Source:          o.Source,
		TableID:         uuidPtr(o.TableID),
		Status:          o.Status,
		Subtotal:        numericToString(o.Subtotal),
		TaxRate:         database.DecimalFromNumeric(o.TaxRate).String(),
		TaxAmount:       numericToString(o.TaxAmount),
		DiscountSource:  textPtr(o.DiscountSource),
		PromoCode:       textPtr(o.PromoCode),
		DiscountAmount:  numericToString(o.DiscountAmount),
		TotalAmount:     numericToString(o.TotalAmount),
		Notes:           textPtr(o.Notes),
		CustomerName:    textPtr(o.CustomerName),
		CustomerPhone:   textPtr(o.CustomerPhone),
		DeliveryAddress: textPtr(o.DeliveryAddress),
		CreatedBy:       uuidPtr(o.CreatedBy),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          timePtr(o.PaidAt),
	}
}

func toOrderItemResponses(items []database.OrderItem) []orderItemResponse {
	resp := make([]orderItemResponse, len(items))
	for i, it := range items {
		resp[i] = orderItemResponse{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			UnitPrice:  numericToString(it.UnitPrice),
			Quantity:   it.Quantity,
			Notes:      textPtr(it.Notes),
			Subtotal:   numericToString(it.Subtotal),
		}
	}
	return resp
}

func quoteResponse(q pricing.Quote) map[string]string {
	return map[string]string{
		"subtotal": q.Subtotal.StringFixed(2),
		"tax":      q.Tax.StringFixed(2),
		"discount": q.Discount.StringFixed(2),
		"total":    q.Total.StringFixed(2),
	}
}

// numericToString formats a NUMERIC money column with 2 decimal places.
func numericToString(n pgtype.Numeric) string {
	return database.DecimalFromNumeric(n).StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
