package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/handler"
	"github.com/saffron-pos/api/internal/middleware"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/service"
	"github.com/saffron-pos/api/internal/split"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mock service ---

// mockSettlementService settles against orders held in a mockOrderStore so
// handler tests see realistic totals and change.
type mockSettlementService struct {
	store      *mockOrderStore
	lastSettle service.SettleRequest
	lastSplit  service.SplitRequest
	err        error
}

func (m *mockSettlementService) Settle(_ context.Context, req service.SettleRequest) (*service.SettleResult, error) {
	m.lastSettle = req
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.store.orders[req.OrderID]
	if !ok || o.RestaurantID != req.RestaurantID {
		return nil, service.ErrOrderNotFound
	}
	total := database.DecimalFromNumeric(o.TotalAmount)
	tendered := req.Tendered
	if req.Method != enum.PaymentMethodCash {
		tendered = total
	}
	if !pricing.CanSettle(req.Method, tendered, total) {
		return nil, service.ErrInsufficientCash
	}
	o.Status = enum.OrderStatusPaid
	m.store.orders[o.ID] = o
	p := database.Payment{
		ID:           uuid.New(),
		OrderID:      o.ID,
		Method:       pgtype.Text{String: req.Method, Valid: true},
		Amount:       o.TotalAmount,
		Tendered:     database.Money(tendered),
		ChangeAmount: database.Money(pricing.ComputeChange(tendered, total)),
		Status:       enum.PaymentStatusCompleted,
	}
	return &service.SettleResult{Order: o, Payment: p}, nil
}

func (m *mockSettlementService) CreateSplits(_ context.Context, req service.SplitRequest) (*service.SplitResult, error) {
	m.lastSplit = req
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.store.orders[req.OrderID]
	if !ok {
		return nil, service.ErrOrderNotFound
	}
	var shares []split.Share
	var err error
	total := database.DecimalFromNumeric(o.TotalAmount)
	switch req.Mode {
	case service.SplitModeEqual:
		shares, err = split.ByCount(total, req.Count)
	case service.SplitModeAmount:
		shares, err = split.ByAmount(total, req.Amounts)
	default:
		return nil, service.ErrInvalidSplitMode
	}
	if err != nil {
		return nil, err
	}
	payments := make([]database.Payment, len(shares))
	for i, sh := range shares {
		payments[i] = database.Payment{
			ID:         uuid.New(),
			OrderID:    o.ID,
			SplitIndex: pgtype.Int4{Int32: int32(sh.Index), Valid: true},
			Amount:     database.Money(sh.Amount),
			Status:     enum.PaymentStatusPending,
		}
	}
	m.store.payments[o.ID] = payments
	return &service.SplitResult{Order: o, Shares: shares, Payments: payments}, nil
}

func (m *mockSettlementService) SettleSplit(_ context.Context, req service.SettleSplitRequest) (*service.SettleSplitResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	o := m.store.orders[req.OrderID]
	payments := m.store.payments[req.OrderID]
	remaining := 0
	var paid *database.Payment
	for i := range payments {
		if payments[i].ID == req.PaymentID {
			if payments[i].Status != enum.PaymentStatusPending {
				return nil, service.ErrSplitSettled
			}
			payments[i].Status = enum.PaymentStatusCompleted
			paid = &payments[i]
			continue
		}
		if payments[i].Status == enum.PaymentStatusPending {
			remaining++
		}
	}
	if paid == nil {
		return nil, service.ErrSplitNotFound
	}
	if remaining == 0 {
		o.Status = enum.OrderStatusPaid
		m.store.orders[o.ID] = o
	}
	return &service.SettleSplitResult{Order: o, Payment: *paid, Remaining: remaining}, nil
}

// --- Helpers ---

func setupPaymentRouter(svc *mockSettlementService, store *mockOrderStore) *chi.Mux {
	h := handler.NewPaymentHandler(svc, store, zap.NewNop())
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret, nil))
		r.Route("/restaurants/{rid}/orders", h.RegisterRoutes)
	})
	return r
}

func seedOpenOrder(store *mockOrderStore, rid uuid.UUID, total string) database.Order {
	o := testOrder(rid, total, "0", "0", total)
	store.orders[o.ID] = o
	return o
}

// --- Settle tests ---

func TestSettle_CashWithChange(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := testOrder(rid, "1980", "317", "0", "2297")
	store.orders[o.ID] = o
	svc := &mockSettlementService{store: store}
	router := setupPaymentRouter(svc, store)
	claims := testClaims(rid)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/payments",
		map[string]interface{}{"payment_method": "CASH", "amount_tendered": "2500"}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["change"] != "203.00" {
		t.Errorf("expected change 203.00, got %v", resp["change"])
	}
	order := resp["order"].(map[string]interface{})
	if order["status"] != enum.OrderStatusPaid {
		t.Errorf("expected PAID, got %v", order["status"])
	}
	if svc.lastSettle.ProcessedBy != claims.StaffID {
		t.Error("expected processed_by to be the signed-in staff member")
	}
	if !svc.lastSettle.Tendered.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected tendered 2500, got %s", svc.lastSettle.Tendered)
	}
}

func TestSettle_CashShort(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "2297")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/payments",
		map[string]interface{}{"payment_method": "CASH", "amount_tendered": "2000"}, testClaims(rid))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if store.orders[o.ID].Status != enum.OrderStatusOpen {
		t.Error("order must stay OPEN after a failed settlement")
	}
}

func TestSettle_CardIgnoresTendered(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "2297")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/payments",
		map[string]interface{}{"payment_method": "CARD"}, testClaims(rid))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if decodeResponse(t, rr)["change"] != "0.00" {
		t.Error("card payments give no change")
	}
}

func TestSettle_Validation(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "100")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)
	path := "/restaurants/" + rid.String() + "/orders/" + o.ID.String() + "/payments"

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing method", map[string]interface{}{"amount_tendered": "100"}},
		{"bad tendered", map[string]interface{}{"payment_method": "CASH", "amount_tendered": "lots"}},
		{"negative tendered", map[string]interface{}{"payment_method": "CASH", "amount_tendered": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAuthRequest(t, router, "POST", path, tt.body, testClaims(rid))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSettle_ServiceErrors(t *testing.T) {
	rid := uuid.New()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid method", service.ErrInvalidMethod, http.StatusBadRequest},
		{"pending splits", service.ErrPendingSplits, http.StatusConflict},
		{"not found", service.ErrOrderNotFound, http.StatusNotFound},
		{"concurrent write", service.ErrConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockOrderStore()
			router := setupPaymentRouter(&mockSettlementService{store: store, err: tt.err}, store)
			rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+uuid.NewString()+"/payments",
				map[string]interface{}{"payment_method": "CASH", "amount_tendered": "1"}, testClaims(rid))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestListPayments_OtherRestaurant(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, uuid.New(), "100")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "GET", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/payments", nil, testClaims(rid))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

// --- Split tests ---

func TestCreateSplits_Equal(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "100")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/splits",
		map[string]interface{}{"mode": "EQUAL", "count": 3}, testClaims(rid))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	shares := resp["shares"].([]interface{})
	want := []string{"33.34", "33.33", "33.33"}
	if len(shares) != len(want) {
		t.Fatalf("expected %d shares, got %d", len(want), len(shares))
	}
	for i, s := range shares {
		if got := s.(map[string]interface{})["amount"]; got != want[i] {
			t.Errorf("share %d: expected %s, got %v", i, want[i], got)
		}
	}
	if payments := resp["payments"].([]interface{}); len(payments) != 3 {
		t.Errorf("expected 3 pending payments, got %d", len(payments))
	}
}

func TestCreateSplits_AmountMismatch(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "100")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+o.ID.String()+"/splits",
		map[string]interface{}{"mode": "AMOUNT", "amounts": []string{"40", "50"}}, testClaims(rid))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCreateSplits_BadInput(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "100")
	svc := &mockSettlementService{store: store}
	router := setupPaymentRouter(svc, store)
	path := "/restaurants/" + rid.String() + "/orders/" + o.ID.String() + "/splits"

	rr := doAuthRequest(t, router, "POST", path,
		map[string]interface{}{"mode": "AMOUNT", "amounts": []string{"abc"}}, testClaims(rid))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: expected 400, got %d", rr.Code)
	}

	rr = doAuthRequest(t, router, "POST", path,
		map[string]interface{}{"mode": "ITEMS", "count": 2, "assignments": map[string]int{"not-a-uuid": 0}}, testClaims(rid))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad assignment: expected 400, got %d", rr.Code)
	}

	rr = doAuthRequest(t, router, "POST", path, map[string]interface{}{"mode": "HALVES"}, testClaims(rid))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad mode: expected 400, got %d", rr.Code)
	}
}

func TestSettleSplit_LastSplitPaysOrder(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	o := seedOpenOrder(store, rid, "100")
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)
	base := "/restaurants/" + rid.String() + "/orders/" + o.ID.String()

	rr := doAuthRequest(t, router, "POST", base+"/splits", map[string]interface{}{"mode": "EQUAL", "count": 2}, testClaims(rid))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create splits: expected 201, got %d", rr.Code)
	}
	payments := store.payments[o.ID]

	rr = doAuthRequest(t, router, "POST", base+"/splits/"+payments[0].ID.String()+"/settle",
		map[string]interface{}{"payment_method": "CARD"}, testClaims(rid))
	if rr.Code != http.StatusOK {
		t.Fatalf("first split: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["remaining"] != float64(1) {
		t.Errorf("expected 1 remaining, got %v", resp["remaining"])
	}
	if resp["order"].(map[string]interface{})["status"] != enum.OrderStatusOpen {
		t.Error("order should stay OPEN while a split is pending")
	}

	rr = doAuthRequest(t, router, "POST", base+"/splits/"+payments[1].ID.String()+"/settle",
		map[string]interface{}{"payment_method": "MOBILE"}, testClaims(rid))
	if rr.Code != http.StatusOK {
		t.Fatalf("second split: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = decodeResponse(t, rr)
	if resp["order"].(map[string]interface{})["status"] != enum.OrderStatusPaid {
		t.Error("order should be PAID after the last split")
	}

	rr = doAuthRequest(t, router, "POST", base+"/splits/"+payments[1].ID.String()+"/settle",
		map[string]interface{}{"payment_method": "MOBILE"}, testClaims(rid))
	if rr.Code != http.StatusConflict {
		t.Fatalf("repeat: expected 409, got %d", rr.Code)
	}
}

func TestSettleSplit_InvalidPaymentID(t *testing.T) {
	rid := uuid.New()
	store := newMockOrderStore()
	router := setupPaymentRouter(&mockSettlementService{store: store}, store)

	rr := doAuthRequest(t, router, "POST", "/restaurants/"+rid.String()+"/orders/"+uuid.NewString()+"/splits/xyz/settle",
		map[string]interface{}{"payment_method": "CARD"}, testClaims(rid))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
