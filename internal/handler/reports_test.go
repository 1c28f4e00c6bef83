package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/handler"
	"go.uber.org/zap"
)

type mockReportsStore struct {
	summary   database.GetSalesSummaryRow
	payments  []database.GetPaymentSummaryRow
	topItems  []database.GetTopMenuItemsRow
	lastStart time.Time
	lastEnd   time.Time
	lastLimit int32
}

func (m *mockReportsStore) GetSalesSummary(_ context.Context, arg database.GetSalesSummaryParams) (database.GetSalesSummaryRow, error) {
	m.lastStart, m.lastEnd = arg.PaidAt, arg.PaidAt_2
	return m.summary, nil
}

func (m *mockReportsStore) GetPaymentSummary(_ context.Context, arg database.GetPaymentSummaryParams) ([]database.GetPaymentSummaryRow, error) {
	return m.payments, nil
}

func (m *mockReportsStore) GetTopMenuItems(_ context.Context, arg database.GetTopMenuItemsParams) ([]database.GetTopMenuItemsRow, error) {
	m.lastStart, m.lastEnd, m.lastLimit = arg.PaidAt, arg.PaidAt_2, arg.Limit
	return m.topItems, nil
}

func setupReportsRouter(store *mockReportsStore) *chi.Mux {
	h := handler.NewReportsHandler(store, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/restaurants/{rid}/reports", h.RegisterRoutes)
	return r
}

func TestReportSummary_Day(t *testing.T) {
	store := &mockReportsStore{
		summary: database.GetSalesSummaryRow{
			OrderCount:    2,
			GrossSales:    testNumeric("3960"),
			TaxTotal:      testNumeric("634"),
			DiscountTotal: testNumeric("396"),
			NetSales:      testNumeric("4198"),
		},
		payments: []database.GetPaymentSummaryRow{
			{PaymentMethod: "CASH", TransactionCount: 1, TotalAmount: testNumeric("2297")},
			{PaymentMethod: "CARD", TransactionCount: 1, TotalAmount: testNumeric("1901")},
		},
	}
	router := setupReportsRouter(store)

	rr := doRequest(t, router, "GET", "/restaurants/"+uuid.NewString()+"/reports/summary?date=2026-03-14", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["order_count"] != float64(2) || resp["net_sales"] != "4198.00" || resp["discount_total"] != "396.00" {
		t.Errorf("unexpected summary: %v", resp)
	}
	if payments := resp["payments"].([]interface{}); len(payments) != 2 {
		t.Errorf("expected 2 payment methods, got %d", len(payments))
	}
	if resp["start_date"] != "2026-03-14" || resp["end_date"] != "2026-03-14" {
		t.Errorf("expected a one-day range, got %v..%v", resp["start_date"], resp["end_date"])
	}

	wantStart := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !store.lastStart.Equal(wantStart) || !store.lastEnd.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Errorf("unexpected query range %v..%v", store.lastStart, store.lastEnd)
	}
}

func TestReportSummary_BadDates(t *testing.T) {
	router := setupReportsRouter(&mockReportsStore{})
	base := "/restaurants/" + uuid.NewString() + "/reports/summary"

	for _, q := range []string{"?date=14-03-2026", "?start_date=2026-03-10&end_date=2026-03-01", "?end_date=tomorrow"} {
		rr := doRequest(t, router, "GET", base+q, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestTopItems_LimitCapped(t *testing.T) {
	store := &mockReportsStore{
		topItems: []database.GetTopMenuItemsRow{
			{MenuItemID: uuid.New(), Name: "Burger", QuantitySold: 12, TotalRevenue: testNumeric("7800")},
		},
	}
	router := setupReportsRouter(store)

	rr := doRequest(t, router, "GET", "/restaurants/"+uuid.NewString()+"/reports/top-items?start_date=2026-03-01&end_date=2026-03-31&limit=1000", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 1 || resp[0]["total_revenue"] != "7800.00" {
		t.Errorf("unexpected top items: %v", resp)
	}
	if store.lastLimit != 100 {
		t.Errorf("expected limit capped at 100, got %d", store.lastLimit)
	}
	if !store.lastEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected exclusive end of April 1, got %v", store.lastEnd)
	}
}
