package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/saffron-pos/api/internal/cart"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/saffron-pos/api/internal/register"
	"github.com/saffron-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutServicer places and settles an order in one step.
// Satisfied by *service.SettlementService.
type CheckoutServicer interface {
	Checkout(ctx context.Context, req service.PlaceOrderRequest, tender service.Tender) (*service.SettleResult, error)
	FindCheckout(ctx context.Context, restaurantID uuid.UUID, key string) (*service.SettleResult, error)
}

// RegisterOrderServicer places register orders and finds ones already placed
// under an idempotency key.
// Satisfied by *service.OrderService.
type RegisterOrderServicer interface {
	OrderServicer
	FindByIdempotencyKey(ctx context.Context, restaurantID uuid.UUID, key string) (*service.PlaceOrderResult, error)
}

// RegisterMenuStore looks up catalog items added to a register.
// Satisfied by *database.Queries; narrow interface for testability.
type RegisterMenuStore interface {
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
}

// RegisterHandler handles the billing screen of the signed-in staff member.
// Each staff member has one register per restaurant.
type RegisterHandler struct {
	registers register.Store
	menu      RegisterMenuStore
	resolver  *promo.Resolver
	taxRate   decimal.Decimal
	orders    RegisterOrderServicer
	checkout  CheckoutServicer
	log       *zap.Logger
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(
	registers register.Store,
	menu RegisterMenuStore,
	resolver *promo.Resolver,
	taxRate decimal.Decimal,
	orders RegisterOrderServicer,
	checkout CheckoutServicer,
	log *zap.Logger,
) *RegisterHandler {
	return &RegisterHandler{
		registers: registers,
		menu:      menu,
		resolver:  resolver,
		taxRate:   taxRate,
		orders:    orders,
		checkout:  checkout,
		log:       log,
	}
}

// RegisterRoutes registers billing screen endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/register
func (h *RegisterHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Delete("/", h.Reset)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{lineId}", h.UpdateLine)
	r.Delete("/items/{lineId}", h.RemoveLine)
	r.Put("/discount", h.SetDiscount)
	r.Delete("/discount", h.ClearDiscount)
	r.Put("/order", h.SetOrder)
	r.Put("/tendered", h.SetTendered)
	r.Post("/orders", h.PlaceOrder)
	r.Post("/settle", h.Settle)
}

// --- Request / Response types ---

type addRegisterItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

type updateRegisterLineRequest struct {
	Quantity *int32  `json:"quantity"`
	Delta    *int32  `json:"delta"`
	Notes    *string `json:"notes"`
}

type registerDiscountRequest struct {
	PromoCode string `json:"promo_code"`
	Amount    string `json:"amount"`
}

type registerOrderRequest struct {
	OrderType string  `json:"order_type"`
	TableID   *string `json:"table_id"`
}

type registerTenderedRequest struct {
	Amount string `json:"amount"`
}

type registerSubmitRequest struct {
	Notes           string `json:"notes"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	DeliveryAddress string `json:"delivery_address"`
	PaymentMethod   string `json:"payment_method"`
	AmountTendered  string `json:"amount_tendered"`
}

type registerLineResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int32     `json:"quantity"`
	Notes      string    `json:"notes"`
	Total      string    `json:"total"`
}

type registerDiscountResponse struct {
	Source string `json:"source"`
	Code   string `json:"code,omitempty"`
	Amount string `json:"amount"`
}

type registerResponse struct {
	Lines     []registerLineResponse   `json:"lines"`
	ItemCount int32                    `json:"item_count"`
	Discount  registerDiscountResponse `json:"discount"`
	OrderType string                   `json:"order_type"`
	TableID   *uuid.UUID               `json:"table_id"`
	Tendered  string                   `json:"tendered"`
	Quote     map[string]string        `json:"quote"`
	Change    string                   `json:"change"`
}

// --- Handlers ---

// Get returns the register with a fresh quote.
func (h *RegisterHandler) Get(w http.ResponseWriter, r *http.Request) {
	reg, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(reg))
}

// Reset empties the register.
func (h *RegisterHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(reg *register.Register) error {
		reg.Reset()
		return nil
	})
}

// AddItem adds a menu item from the catalog. Adding an item already in the
// cart increases its quantity.
func (h *RegisterHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addRegisterItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	menuItemID, err := uuid.Parse(req.MenuItemID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_item_id"})
		return
	}
	if req.Quantity < 0 || req.Quantity > cart.MaxQuantity {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": service.ErrInvalidQuantity.Error()})
		return
	}

	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	mi, err := h.menu.GetMenuItem(r.Context(), database.GetMenuItemParams{
		ID:           menuItemID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		h.log.Error("get menu item", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	item := cart.MenuItem{
		ID:        mi.ID,
		Name:      mi.Name,
		UnitPrice: database.DecimalFromNumeric(mi.UnitPrice),
		Category:  mi.Category,
		Available: mi.IsAvailable,
	}

	h.mutate(w, r, func(reg *register.Register) error {
		line, err := reg.Cart.AddItem(item)
		if err != nil {
			return err
		}
		if req.Quantity > 1 {
			return reg.Cart.UpdateQuantity(line.ID, req.Quantity-1)
		}
		return nil
	})
}

// UpdateLine sets a line's quantity, changes it by a delta, or replaces its
// notes. A resulting quantity of zero or less removes the line.
func (h *RegisterHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(chi.URLParam(r, "lineId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	var req updateRegisterLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Quantity != nil && req.Delta != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity and delta cannot be combined"})
		return
	}
	if req.Quantity == nil && req.Delta == nil && req.Notes == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity, delta or notes is required"})
		return
	}

	h.mutate(w, r, func(reg *register.Register) error {
		if req.Notes != nil {
			if err := reg.Cart.SetNotes(lineID, *req.Notes); err != nil {
				return err
			}
		}
		switch {
		case req.Quantity != nil:
			return reg.Cart.SetQuantity(lineID, *req.Quantity)
		case req.Delta != nil:
			return reg.Cart.UpdateQuantity(lineID, *req.Delta)
		}
		return nil
	})
}

// RemoveLine deletes a line. Removing a line that is not there is not an error.
func (h *RegisterHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuid.Parse(chi.URLParam(r, "lineId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	h.mutate(w, r, func(reg *register.Register) error {
		reg.Cart.RemoveLine(lineID)
		return nil
	})
}

// SetDiscount applies a promo code or a manual amount, replacing whichever
// discount was active.
func (h *RegisterHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req registerDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	discount, msg := parseDiscount(req.PromoCode, req.Amount)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if discount.Source == enum.DiscountSourceNone {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "promo_code or amount is required"})
		return
	}

	h.mutate(w, r, func(reg *register.Register) error {
		if discount.Source == enum.DiscountSourcePromo {
			_, err := reg.ApplyPromo(h.resolver, discount.PromoCode)
			return err
		}
		return reg.SetManualDiscount(discount.Amount)
	})
}

// ClearDiscount removes the active discount.
func (h *RegisterHandler) ClearDiscount(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(reg *register.Register) error {
		reg.ClearDiscount()
		return nil
	})
}

// SetOrder selects the order type and, for dine-in, the table.
func (h *RegisterHandler) SetOrder(w http.ResponseWriter, r *http.Request) {
	var req registerOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var tableID *uuid.UUID
	if req.TableID != nil && *req.TableID != "" {
		id, err := uuid.Parse(*req.TableID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table_id"})
			return
		}
		tableID = &id
	}

	h.mutate(w, r, func(reg *register.Register) error {
		if req.OrderType != "" {
			if err := reg.SetOrderType(req.OrderType); err != nil {
				return err
			}
		}
		if req.TableID != nil {
			return reg.SetTable(tableID)
		}
		return nil
	})
}

// SetTendered records the cash handed over.
func (h *RegisterHandler) SetTendered(w http.ResponseWriter, r *http.Request) {
	var req registerTenderedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		return
	}

	h.mutate(w, r, func(reg *register.Register) error {
		return reg.SetTendered(amount)
	})
}

// PlaceOrder sends the register to the kitchen as an OPEN order and resets
// it. The register is left untouched if placement fails.
func (h *RegisterHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	reg, req, _, ok := h.prepareSubmit(w, r)
	if !ok {
		return
	}
	if reg.Cart.IsEmpty() {
		result, err := h.orders.FindByIdempotencyKey(r.Context(), req.RestaurantID, req.IdempotencyKey)
		if err != nil {
			h.writeReplayError(w, "find register order", err)
			return
		}
		writeJSON(w, http.StatusOK, placeResultToResponse(result))
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, "place register order", err)
		return
	}

	h.resetAfterSubmit(r.Context(), reg)

	code := http.StatusCreated
	if result.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, placeResultToResponse(result))
}

// Settle is the counter sale: the register is placed and paid in one step,
// then reset. Nothing is stored when payment fails.
func (h *RegisterHandler) Settle(w http.ResponseWriter, r *http.Request) {
	reg, req, body, ok := h.prepareSubmit(w, r)
	if !ok {
		return
	}
	if reg.Cart.IsEmpty() {
		result, err := h.checkout.FindCheckout(r.Context(), req.RestaurantID, req.IdempotencyKey)
		if err != nil {
			h.writeReplayError(w, "find register checkout", err)
			return
		}
		writeJSON(w, http.StatusOK, settleResultToResponse(result))
		return
	}

	tender, msg := tenderRequest{
		PaymentMethod:  body.PaymentMethod,
		AmountTendered: body.AmountTendered,
	}.toTender()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if body.AmountTendered == "" {
		tender.Tendered = reg.Tendered
	}

	result, err := h.checkout.Checkout(r.Context(), req, tender)
	if err != nil {
		writeServiceError(w, h.log, "register checkout", err)
		return
	}

	h.resetAfterSubmit(r.Context(), reg)

	code := http.StatusCreated
	if result.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, settleResultToResponse(result))
}

// --- Helpers ---

// prepareSubmit loads the register and builds the order request from it.
// The body is optional; it carries customer details and the tender.
// An empty register is only accepted with an Idempotency-Key: the first
// submit reset it, and the caller replays the stored order.
func (h *RegisterHandler) prepareSubmit(w http.ResponseWriter, r *http.Request) (*register.Register, service.PlaceOrderRequest, registerSubmitRequest, bool) {
	var body registerSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return nil, service.PlaceOrderRequest{}, body, false
	}

	reg, ok := h.load(w, r)
	if !ok {
		return nil, service.PlaceOrderRequest{}, body, false
	}
	key := r.Header.Get(IdempotencyHeader)
	if reg.Cart.IsEmpty() {
		if key == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "register is empty"})
			return nil, service.PlaceOrderRequest{}, body, false
		}
		return reg, service.PlaceOrderRequest{RestaurantID: reg.RestaurantID, IdempotencyKey: key}, body, true
	}

	req := service.PlaceOrderRequest{
		RestaurantID:    reg.RestaurantID,
		CreatedBy:       reg.StaffID,
		Source:          enum.OrderSourceStaff,
		OrderType:       reg.OrderType,
		TableID:         reg.TableID,
		Items:           make([]service.PlaceOrderItem, len(reg.Cart.Lines)),
		Discount:        h.discountFor(reg),
		Notes:           body.Notes,
		CustomerName:    body.CustomerName,
		CustomerPhone:   body.CustomerPhone,
		DeliveryAddress: body.DeliveryAddress,
		IdempotencyKey:  key,
	}
	for i, line := range reg.Cart.Lines {
		req.Items[i] = service.PlaceOrderItem{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			Notes:      line.Notes,
		}
	}
	return reg, req, body, true
}

// writeReplayError answers a submit of an empty register whose key matched
// nothing as a plain empty-register request.
func (h *RegisterHandler) writeReplayError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, service.ErrOrderNotFound) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "register is empty"})
		return
	}
	writeServiceError(w, h.log, op, err)
}

// discountFor carries the register's discount onto the order. A promo whose
// minimum is no longer met is dropped, matching what the quote showed.
func (h *RegisterHandler) discountFor(reg *register.Register) service.DiscountRequest {
	switch reg.Discount.Source {
	case enum.DiscountSourcePromo:
		if _, err := h.resolver.Validate(reg.Discount.Code, reg.Cart.Subtotal()); err != nil {
			return service.DiscountRequest{}
		}
		return service.DiscountRequest{Source: enum.DiscountSourcePromo, PromoCode: reg.Discount.Code}
	case enum.DiscountSourceManual:
		return service.DiscountRequest{Source: enum.DiscountSourceManual, Amount: reg.Discount.Amount}
	}
	return service.DiscountRequest{}
}

// resetAfterSubmit clears the register once its order is stored. A failure
// here does not undo the order, so it is only logged.
func (h *RegisterHandler) resetAfterSubmit(ctx context.Context, reg *register.Register) {
	reg.Reset()
	if err := h.registers.Save(ctx, reg); err != nil {
		h.log.Warn("reset register", zap.Error(err),
			zap.String("restaurant_id", reg.RestaurantID.String()),
			zap.String("staff_id", reg.StaffID.String()))
	}
}

func (h *RegisterHandler) load(w http.ResponseWriter, r *http.Request) (*register.Register, bool) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return nil, false
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return nil, false
	}

	reg, err := h.registers.Get(r.Context(), restaurantID, claims.StaffID)
	if err != nil {
		h.log.Error("load register", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return nil, false
	}
	return reg, true
}

// mutate loads the register, applies fn and saves it. Errors from fn are
// mapped like service errors and leave the stored register unchanged.
func (h *RegisterHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(*register.Register) error) {
	reg, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := fn(reg); err != nil {
		writeServiceError(w, h.log, "update register", err)
		return
	}

	if err := h.registers.Save(r.Context(), reg); err != nil {
		h.log.Error("save register", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, h.toResponse(reg))
}

func (h *RegisterHandler) toResponse(reg *register.Register) registerResponse {
	q := reg.Quote(h.resolver, h.taxRate)
	resp := registerResponse{
		Lines:     make([]registerLineResponse, len(reg.Cart.Lines)),
		ItemCount: reg.Cart.ItemCount(),
		Discount: registerDiscountResponse{
			Source: reg.Discount.Source,
			Code:   reg.Discount.Code,
			Amount: q.Discount.StringFixed(2),
		},
		OrderType: reg.OrderType,
		TableID:   reg.TableID,
		Tendered:  reg.Tendered.StringFixed(2),
		Quote:     quoteResponse(q),
		Change:    reg.Change(q.Total).StringFixed(2),
	}
	for i, l := range reg.Cart.Lines {
		resp.Lines[i] = registerLineResponse{
			ID:         l.ID,
			MenuItemID: l.MenuItemID,
			Name:       l.Name,
			UnitPrice:  l.UnitPrice.StringFixed(2),
			Quantity:   l.Quantity,
			Notes:      l.Notes,
			Total:      l.Total().StringFixed(2),
		}
	}
	return resp
}
