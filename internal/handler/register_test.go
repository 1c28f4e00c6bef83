package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/auth"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/handler"
	"github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/saffron-pos/api/internal/register"
	"github.com/saffron-pos/api/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// mockCheckout records the counter sale it was asked to make.
type mockCheckout struct {
	lastReq    service.PlaceOrderRequest
	lastTender service.Tender
	calls      int
	err        error
	byIdemKey  map[string]*service.SettleResult
}

func (m *mockCheckout) Checkout(_ context.Context, req service.PlaceOrderRequest, tender service.Tender) (*service.SettleResult, error) {
	m.calls++
	m.lastReq = req
	m.lastTender = tender
	if m.err != nil {
		return nil, m.err
	}
	result := m.sale(req, tender)
	if req.IdempotencyKey != "" && m.byIdemKey != nil {
		m.byIdemKey[req.IdempotencyKey] = result
	}
	return result, nil
}

func (m *mockCheckout) FindCheckout(_ context.Context, _ uuid.UUID, key string) (*service.SettleResult, error) {
	if prev, ok := m.byIdemKey[key]; ok {
		again := *prev
		again.Existing = true
		return &again, nil
	}
	return nil, service.ErrOrderNotFound
}

func (m *mockCheckout) sale(req service.PlaceOrderRequest, tender service.Tender) *service.SettleResult {
	o := testOrder(req.RestaurantID, "1980", "317", "0", "2297")
	o.Status = enum.OrderStatusPaid
	return &service.SettleResult{
		Order: o,
		Payment: database.Payment{
			ID:           uuid.New(),
			OrderID:      o.ID,
			Method:       pgtype.Text{String: tender.Method, Valid: true},
			Amount:       o.TotalAmount,
			Tendered:     database.Money(tender.Tendered),
			ChangeAmount: database.Money(tender.Tendered.Sub(decimal.NewFromInt(2297))),
			Status:       enum.PaymentStatusCompleted,
		},
	}
}

type registerFixture struct {
	router   *chi.Mux
	store    *register.MemoryStore
	orders   *mockOrderService
	checkout *mockCheckout
	claims   *auth.Claims
	base     string
	burger   database.MenuItem
	fries    database.MenuItem
	soda     database.MenuItem
	soldOut  database.MenuItem
}

func newRegisterFixture(t *testing.T) *registerFixture {
	t.Helper()
	rid := uuid.New()
	menu := newMockMenuItemStore()
	f := &registerFixture{
		store:    register.NewMemoryStore(),
		orders:   &mockOrderService{byIdemKey: map[string]*service.PlaceOrderResult{}},
		checkout: &mockCheckout{byIdemKey: map[string]*service.SettleResult{}},
		claims:   testClaims(rid),
		base:     "/restaurants/" + rid.String() + "/register",
		burger:   seedMenuItem(menu, rid, "Burger", "Mains", "650", true),
		fries:    seedMenuItem(menu, rid, "Fries", "Sides", "80", true),
		soda:     seedMenuItem(menu, rid, "Soda", "Drinks", "180", true),
		soldOut:  seedMenuItem(menu, rid, "Samosa", "Starters", "120", false),
	}
	f.orders.result = testPlaceResult(rid)

	h := handler.NewRegisterHandler(f.store, menu, promo.NewResolver(promo.DefaultPromos),
		decimal.RequireFromString("0.16"), f.orders, f.checkout, zap.NewNop())
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret, nil))
		r.Route("/restaurants/{rid}/register", h.RegisterRoutes)
	})
	f.router = r
	return f
}

func (f *registerFixture) do(t *testing.T, method, path string, body interface{}) map[string]interface{} {
	t.Helper()
	rr := doAuthRequest(t, f.router, method, f.base+path, body, f.claims)
	if rr.Code != http.StatusOK && rr.Code != http.StatusCreated {
		t.Fatalf("%s %s: expected success, got %d: %s", method, path, rr.Code, rr.Body.String())
	}
	return decodeResponse(t, rr)
}

// submit posts to a submit endpoint carrying an Idempotency-Key.
func (f *registerFixture) submit(t *testing.T, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, f.claims.StaffID, f.claims.RestaurantID, f.claims.Role, uuid.NewString())
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", f.base+path, bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(handler.IdempotencyHeader, key)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *registerFixture) status(t *testing.T, method, path string, body interface{}) int {
	t.Helper()
	return doAuthRequest(t, f.router, method, f.base+path, body, f.claims).Code
}

// fillAcceptanceCart builds 2 × Burger, 4 × Fries, 2 × Soda.
func (f *registerFixture) fillAcceptanceCart(t *testing.T) map[string]interface{} {
	t.Helper()
	f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String(), "quantity": 2})
	f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.fries.ID.String(), "quantity": 4})
	return f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.soda.ID.String(), "quantity": 2})
}

func quoteOf(resp map[string]interface{}) map[string]interface{} {
	return resp["quote"].(map[string]interface{})
}

// --- Tests ---

func TestRegister_AcceptanceQuote(t *testing.T) {
	f := newRegisterFixture(t)
	resp := f.fillAcceptanceCart(t)

	q := quoteOf(resp)
	if q["subtotal"] != "1980.00" || q["tax"] != "317.00" || q["total"] != "2297.00" {
		t.Fatalf("unexpected quote: %v", q)
	}
	if resp["item_count"] != float64(8) {
		t.Errorf("expected 8 items, got %v", resp["item_count"])
	}
	if lines := resp["lines"].([]interface{}); len(lines) != 3 {
		t.Errorf("expected 3 lines, got %d", len(lines))
	}
}

func TestRegister_AddSameItemMergesLine(t *testing.T) {
	f := newRegisterFixture(t)
	f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String()})
	resp := f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String()})

	lines := resp["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if lines[0].(map[string]interface{})["quantity"] != float64(2) {
		t.Errorf("expected quantity 2, got %v", lines[0].(map[string]interface{})["quantity"])
	}
}

func TestRegister_SoldOutItemRejected(t *testing.T) {
	f := newRegisterFixture(t)

	if code := f.status(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.soldOut.ID.String()}); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if code := f.status(t, "POST", "/items", map[string]interface{}{"menu_item_id": uuid.NewString()}); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", code)
	}
}

func TestRegister_UpdateAndRemoveLines(t *testing.T) {
	f := newRegisterFixture(t)
	resp := f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String(), "quantity": 3})
	lineID := resp["lines"].([]interface{})[0].(map[string]interface{})["id"].(string)

	resp = f.do(t, "PATCH", "/items/"+lineID, map[string]interface{}{"delta": -1, "notes": "well done"})
	line := resp["lines"].([]interface{})[0].(map[string]interface{})
	if line["quantity"] != float64(2) || line["notes"] != "well done" {
		t.Errorf("unexpected line after update: %v", line)
	}

	resp = f.do(t, "PATCH", "/items/"+lineID, map[string]interface{}{"quantity": 0})
	if lines := resp["lines"].([]interface{}); len(lines) != 0 {
		t.Errorf("quantity 0 should remove the line, got %v", lines)
	}

	if code := f.status(t, "PATCH", "/items/"+lineID, map[string]interface{}{"quantity": 1}); code != http.StatusNotFound {
		t.Errorf("expected 404 for a removed line, got %d", code)
	}
	// Removing an unknown line is a no-op.
	f.do(t, "DELETE", "/items/"+uuid.NewString(), nil)
}

func TestRegister_DiscountsAreMutuallyExclusive(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)

	resp := f.do(t, "PUT", "/discount", map[string]string{"promo_code": "welcome20"})
	if q := quoteOf(resp); q["discount"] != "396.00" || q["total"] != "1901.00" {
		t.Fatalf("unexpected promo quote: %v", q)
	}

	resp = f.do(t, "PUT", "/discount", map[string]string{"amount": "100"})
	d := resp["discount"].(map[string]interface{})
	if d["source"] != enum.DiscountSourceManual || d["code"] != nil {
		t.Errorf("manual discount should replace the promo, got %v", d)
	}
	if quoteOf(resp)["total"] != "2197.00" {
		t.Errorf("expected total 2197.00, got %v", quoteOf(resp)["total"])
	}

	resp = f.do(t, "DELETE", "/discount", nil)
	if quoteOf(resp)["discount"] != "0.00" {
		t.Errorf("expected discount cleared, got %v", quoteOf(resp)["discount"])
	}

	if code := f.status(t, "PUT", "/discount", map[string]string{"promo_code": "TEAM50", "amount": "5"}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for both discounts, got %d", code)
	}
}

func TestRegister_PromoBelowMinimumKeepsDiscount(t *testing.T) {
	f := newRegisterFixture(t)
	f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.fries.ID.String()})
	f.do(t, "PUT", "/discount", map[string]string{"amount": "10"})

	if code := f.status(t, "PUT", "/discount", map[string]string{"promo_code": "FEAST15"}); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	resp := f.do(t, "GET", "", nil)
	if d := resp["discount"].(map[string]interface{}); d["source"] != enum.DiscountSourceManual {
		t.Errorf("failed promo must leave the manual discount, got %v", d)
	}
}

func TestRegister_PromoDroppedWhenCartShrinks(t *testing.T) {
	f := newRegisterFixture(t)
	resp := f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String()})
	lineID := resp["lines"].([]interface{})[0].(map[string]interface{})["id"].(string)
	f.do(t, "PUT", "/discount", map[string]string{"promo_code": "WELCOME20"})

	f.do(t, "DELETE", "/items/"+lineID, nil)
	resp = f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.fries.ID.String()})
	if quoteOf(resp)["discount"] != "0.00" {
		t.Errorf("promo below its minimum should not discount, got %v", quoteOf(resp)["discount"])
	}

	f.do(t, "POST", "/orders", nil)
	if f.orders.lastReq.Discount.Source != enum.DiscountSourceNone {
		t.Errorf("lapsed promo should not reach the order, got %+v", f.orders.lastReq.Discount)
	}
}

func TestRegister_OrderTypeAndTable(t *testing.T) {
	f := newRegisterFixture(t)
	tableID := uuid.NewString()

	resp := f.do(t, "PUT", "/order", map[string]interface{}{"table_id": tableID})
	if resp["table_id"] != tableID {
		t.Fatalf("expected table %s, got %v", tableID, resp["table_id"])
	}

	resp = f.do(t, "PUT", "/order", map[string]interface{}{"order_type": enum.OrderTypeTakeaway})
	if resp["table_id"] != nil {
		t.Error("leaving dine-in should drop the table")
	}

	if code := f.status(t, "PUT", "/order", map[string]interface{}{"table_id": tableID}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a table on takeaway, got %d", code)
	}
	if code := f.status(t, "PUT", "/order", map[string]interface{}{"order_type": "DRIVE_THRU"}); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown order type, got %d", code)
	}
}

func TestRegister_PlaceOrderResets(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)
	f.do(t, "PUT", "/discount", map[string]string{"promo_code": "FLAT100"})

	f.do(t, "POST", "/orders", map[string]string{"notes": "birthday"})

	req := f.orders.lastReq
	if len(req.Items) != 3 || req.CreatedBy != f.claims.StaffID || req.Notes != "birthday" {
		t.Errorf("unexpected order request: %+v", req)
	}
	if req.Discount.Source != enum.DiscountSourcePromo || req.Discount.PromoCode != "FLAT100" {
		t.Errorf("expected promo to carry over, got %+v", req.Discount)
	}

	resp := f.do(t, "GET", "", nil)
	if lines := resp["lines"].([]interface{}); len(lines) != 0 {
		t.Error("register should be empty after placing the order")
	}
	if resp["discount"].(map[string]interface{})["source"] != enum.DiscountSourceNone {
		t.Error("discount should be cleared after placing the order")
	}
}

func TestRegister_PlaceOrderFailureKeepsCart(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)
	f.orders.err = service.ErrMenuItemSoldOut

	if code := f.status(t, "POST", "/orders", nil); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	resp := f.do(t, "GET", "", nil)
	if lines := resp["lines"].([]interface{}); len(lines) != 3 {
		t.Errorf("cart should survive a failed order, got %d lines", len(lines))
	}
}

func TestRegister_EmptyCannotBeSubmitted(t *testing.T) {
	f := newRegisterFixture(t)

	if code := f.status(t, "POST", "/orders", nil); code != http.StatusBadRequest {
		t.Errorf("orders: expected 400, got %d", code)
	}
	if code := f.status(t, "POST", "/settle", map[string]string{"payment_method": "CARD"}); code != http.StatusBadRequest {
		t.Errorf("settle: expected 400, got %d", code)
	}
}

func TestRegister_RepeatedPlaceOrderReturnsStoredOrder(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)

	first := f.submit(t, "/orders", "dbl-click-1", nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := f.submit(t, "/orders", "dbl-click-1", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d: %s", second.Code, second.Body.String())
	}
	if decodeResponse(t, first)["id"] != decodeResponse(t, second)["id"] {
		t.Error("retry returned a different order")
	}
	if f.orders.calls != 1 {
		t.Errorf("expected one placement, got %d", f.orders.calls)
	}

	// An unknown key on an empty register is still an empty submit.
	if rr := f.submit(t, "/orders", "never-used", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown key: expected 400, got %d", rr.Code)
	}
}

func TestRegister_RepeatedSettleReturnsStoredSale(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)
	body := map[string]string{"payment_method": "CASH", "amount_tendered": "2500"}

	first := f.submit(t, "/settle", "till-3", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := f.submit(t, "/settle", "till-3", body)
	if second.Code != http.StatusOK {
		t.Fatalf("retry: expected 200, got %d: %s", second.Code, second.Body.String())
	}
	if f.checkout.calls != 1 {
		t.Errorf("expected one checkout, got %d", f.checkout.calls)
	}
	resp := decodeResponse(t, second)
	if resp["change"] != "203.00" {
		t.Errorf("expected the stored change 203.00, got %v", resp["change"])
	}
}

func TestRegister_QuantityBounds(t *testing.T) {
	f := newRegisterFixture(t)

	code := f.status(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String(), "quantity": math.MaxInt32})
	if code != http.StatusBadRequest {
		t.Fatalf("huge add: expected 400, got %d", code)
	}

	resp := f.do(t, "POST", "/items", map[string]interface{}{"menu_item_id": f.burger.ID.String(), "quantity": 5})
	lineID := resp["lines"].([]interface{})[0].(map[string]interface{})["id"].(string)

	code = f.status(t, "PATCH", "/items/"+lineID, map[string]interface{}{"delta": math.MaxInt32})
	if code != http.StatusBadRequest {
		t.Fatalf("huge delta: expected 400, got %d", code)
	}
	code = f.status(t, "PATCH", "/items/"+lineID, map[string]interface{}{"quantity": 1000})
	if code != http.StatusBadRequest {
		t.Fatalf("quantity above maximum: expected 400, got %d", code)
	}

	lines := f.do(t, "GET", "", nil)["lines"].([]interface{})
	if len(lines) != 1 || lines[0].(map[string]interface{})["quantity"] != float64(5) {
		t.Errorf("line must be unchanged after rejected updates, got %v", lines)
	}
}

func TestRegister_SettleUsesRecordedTender(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)

	resp := f.do(t, "PUT", "/tendered", map[string]string{"amount": "2500"})
	if resp["change"] != "203.00" {
		t.Errorf("expected change 203.00, got %v", resp["change"])
	}

	resp = f.do(t, "POST", "/settle", map[string]string{"payment_method": "CASH"})
	if !f.checkout.lastTender.Tendered.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected tendered 2500, got %s", f.checkout.lastTender.Tendered)
	}
	if resp["change"] != "203.00" {
		t.Errorf("expected change 203.00, got %v", resp["change"])
	}

	after := f.do(t, "GET", "", nil)
	if after["tendered"] != "0.00" || len(after["lines"].([]interface{})) != 0 {
		t.Errorf("register should reset after settlement, got %v", after)
	}
}

func TestRegister_SettleShortCashKeepsCart(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)
	f.checkout.err = service.ErrInsufficientCash

	code := f.status(t, "POST", "/settle", map[string]string{"payment_method": "CASH", "amount_tendered": "2000"})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if lines := f.do(t, "GET", "", nil)["lines"].([]interface{}); len(lines) != 3 {
		t.Error("cart should survive a failed settlement")
	}
}

func TestRegister_IsPerStaffMember(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)

	other := testClaims(f.claims.RestaurantID)
	rr := doAuthRequest(t, f.router, "GET", f.base, nil, other)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if lines := decodeResponse(t, rr)["lines"].([]interface{}); len(lines) != 0 {
		t.Error("another staff member should see an empty register")
	}
}

func TestRegister_Reset(t *testing.T) {
	f := newRegisterFixture(t)
	f.fillAcceptanceCart(t)
	f.do(t, "PUT", "/discount", map[string]string{"amount": "50"})

	first := f.do(t, "DELETE", "", nil)
	second := f.do(t, "DELETE", "", nil)
	if quoteOf(first)["total"] != "0.00" || quoteOf(second)["total"] != "0.00" {
		t.Error("reset should empty the register every time")
	}
}
