package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/database"
	"go.uber.org/zap"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	GetSalesSummary(ctx context.Context, arg database.GetSalesSummaryParams) (database.GetSalesSummaryRow, error)
	GetPaymentSummary(ctx context.Context, arg database.GetPaymentSummaryParams) ([]database.GetPaymentSummaryRow, error)
	GetTopMenuItems(ctx context.Context, arg database.GetTopMenuItemsParams) ([]database.GetTopMenuItemsRow, error)
}

// ReportsHandler handles dashboard report endpoints.
type ReportsHandler struct {
	store ReportsStore
	now   func() time.Time
	log   *zap.Logger
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore, log *zap.Logger) *ReportsHandler {
	return &ReportsHandler{store: store, now: time.Now, log: log}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/payment-summary", h.PaymentSummary)
	r.Get("/top-items", h.TopItems)
}

// --- Response types ---

type salesSummaryResponse struct {
	StartDate     string                   `json:"start_date"`
	EndDate       string                   `json:"end_date"`
	OrderCount    int64                    `json:"order_count"`
	GrossSales    string                   `json:"gross_sales"`
	TaxTotal      string                   `json:"tax_total"`
	DiscountTotal string                   `json:"discount_total"`
	NetSales      string                   `json:"net_sales"`
	Payments      []paymentSummaryResponse `json:"payments"`
}

type paymentSummaryResponse struct {
	PaymentMethod    string `json:"payment_method"`
	TransactionCount int64  `json:"transaction_count"`
	TotalAmount      string `json:"total_amount"`
}

type topItemResponse struct {
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	Name         string    `json:"name"`
	QuantitySold int64     `json:"quantity_sold"`
	TotalRevenue string    `json:"total_revenue"`
}

// --- Handlers ---

// Summary returns paid-order totals and the payment method breakdown for a
// day (?date=) or a range (?start_date=&end_date=). Defaults to today.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	start, end, err := parseDateRange(r, h.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	row, err := h.store.GetSalesSummary(r.Context(), database.GetSalesSummaryParams{
		RestaurantID: restaurantID,
		PaidAt:       start,
		PaidAt_2:     end,
	})
	if err != nil {
		h.log.Error("get sales summary", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	payments, err := h.paymentSummary(r.Context(), restaurantID, start, end)
	if err != nil {
		h.log.Error("get payment summary", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, salesSummaryResponse{
		StartDate:     start.Format(dateLayout),
		EndDate:       end.AddDate(0, 0, -1).Format(dateLayout),
		OrderCount:    row.OrderCount,
		GrossSales:    numericToString(row.GrossSales),
		TaxTotal:      numericToString(row.TaxTotal),
		DiscountTotal: numericToString(row.DiscountTotal),
		NetSales:      numericToString(row.NetSales),
		Payments:      payments,
	})
}

// PaymentSummary returns breakdown of sales by payment method.
func (h *ReportsHandler) PaymentSummary(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	start, end, err := parseDateRange(r, h.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := h.paymentSummary(r.Context(), restaurantID, start, end)
	if err != nil {
		h.log.Error("get payment summary", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// TopItems returns the best selling menu items by quantity.
func (h *ReportsHandler) TopItems(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid restaurant ID"})
		return
	}

	start, end, err := parseDateRange(r, h.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := h.store.GetTopMenuItems(r.Context(), database.GetTopMenuItemsParams{
		RestaurantID: restaurantID,
		PaidAt:       start,
		PaidAt_2:     end,
		Limit:        int32(limit),
	})
	if err != nil {
		h.log.Error("get top menu items", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]topItemResponse, len(rows))
	for i, row := range rows {
		resp[i] = topItemResponse{
			MenuItemID:   row.MenuItemID,
			Name:         row.Name,
			QuantitySold: row.QuantitySold,
			TotalRevenue: numericToString(row.TotalRevenue),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func (h *ReportsHandler) paymentSummary(ctx context.Context, restaurantID uuid.UUID, start, end time.Time) ([]paymentSummaryResponse, error) {
	rows, err := h.store.GetPaymentSummary(ctx, database.GetPaymentSummaryParams{
		RestaurantID:  restaurantID,
		ProcessedAt:   start,
		ProcessedAt_2: end,
	})
	if err != nil {
		return nil, err
	}

	resp := make([]paymentSummaryResponse, len(rows))
	for i, row := range rows {
		resp[i] = paymentSummaryResponse{
			PaymentMethod:    row.PaymentMethod,
			TransactionCount: row.TransactionCount,
			TotalAmount:      numericToString(row.TotalAmount),
		}
	}
	return resp, nil
}

// parseDateRange reads ?date= or ?start_date=&end_date= (YYYY-MM-DD, UTC).
// Defaults to the UTC day containing now. The returned end is exclusive
// (midnight after the last day).
func parseDateRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if s := q.Get("date"); s != "" {
		day, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid date format, use YYYY-MM-DD")
		}
		return day, day.AddDate(0, 0, 1), nil
	}

	start, end := today, today.AddDate(0, 0, 1)
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start_date format, use YYYY-MM-DD")
		}
		start = t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end_date format, use YYYY-MM-DD")
		}
		end = t.AddDate(0, 0, 1)
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.New("start_date must not be after end_date")
	}
	return start, end, nil
}
