package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getSalesSummary = `-- name: GetSalesSummary :one
SELECT
    COUNT(*)::bigint AS order_count,
    COALESCE(SUM(subtotal), 0)::numeric AS gross_sales,
    COALESCE(SUM(tax_amount), 0)::numeric AS tax_total,
    COALESCE(SUM(discount_amount), 0)::numeric AS discount_total,
    COALESCE(SUM(total_amount), 0)::numeric AS net_sales
FROM orders
WHERE restaurant_id = $1
  AND status = 'PAID'
  AND paid_at >= $2 AND paid_at < $3
`

type GetSalesSummaryParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	PaidAt       time.Time `json:"paid_at"`
	PaidAt_2     time.Time `json:"paid_at_2"`
}

type GetSalesSummaryRow struct {
	OrderCount    int64          `json:"order_count"`
	GrossSales    pgtype.Numeric `json:"gross_sales"`
	TaxTotal      pgtype.Numeric `json:"tax_total"`
	DiscountTotal pgtype.Numeric `json:"discount_total"`
	NetSales      pgtype.Numeric `json:"net_sales"`
}

func (q *Queries) GetSalesSummary(ctx context.Context, arg GetSalesSummaryParams) (GetSalesSummaryRow, error) {
	row := q.db.QueryRow(ctx, getSalesSummary, arg.RestaurantID, arg.PaidAt, arg.PaidAt_2)
	var i GetSalesSummaryRow
	err := row.Scan(
		&i.OrderCount,
		&i.GrossSales,
		&i.TaxTotal,
		&i.DiscountTotal,
		&i.NetSales,
	)
	return i, err
}

const getPaymentSummary = `-- name: GetPaymentSummary :many
SELECT
    p.method::text AS payment_method,
    COUNT(*)::bigint AS transaction_count,
    COALESCE(SUM(p.amount), 0)::numeric AS total_amount
FROM payments p
JOIN orders o ON o.id = p.order_id
WHERE o.restaurant_id = $1
  AND p.status = 'COMPLETED'
  AND p.processed_at >= $2 AND p.processed_at < $3
GROUP BY p.method
ORDER BY total_amount DESC
`

type GetPaymentSummaryParams struct {
	RestaurantID  uuid.UUID `json:"restaurant_id"`
	ProcessedAt   time.Time `json:"processed_at"`
	ProcessedAt_2 time.Time `json:"processed_at_2"`
}

type GetPaymentSummaryRow struct {
	PaymentMethod    string         `json:"payment_method"`
	TransactionCount int64          `json:"transaction_count"`
	TotalAmount      pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) GetPaymentSummary(ctx context.Context, arg GetPaymentSummaryParams) ([]GetPaymentSummaryRow, error) {
	rows, err := q.db.Query(ctx, getPaymentSummary, arg.RestaurantID, arg.ProcessedAt, arg.ProcessedAt_2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetPaymentSummaryRow{}
	for rows.Next() {
		var i GetPaymentSummaryRow
		if err := rows.Scan(&i.PaymentMethod, &i.TransactionCount, &i.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTopMenuItems = `-- name: GetTopMenuItems :many
SELECT
    oi.menu_item_id,
    oi.name,
    SUM(oi.quantity)::bigint AS quantity_sold,
    COALESCE(SUM(oi.subtotal), 0)::numeric AS total_revenue
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE o.restaurant_id = $1
  AND o.status = 'PAID'
  AND o.paid_at >= $2 AND o.paid_at < $3
GROUP BY oi.menu_item_id, oi.name
ORDER BY quantity_sold DESC, total_revenue DESC
LIMIT $4
`

type GetTopMenuItemsParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	PaidAt       time.Time `json:"paid_at"`
	PaidAt_2     time.Time `json:"paid_at_2"`
	Limit        int32     `json:"limit"`
}

type GetTopMenuItemsRow struct {
	MenuItemID   uuid.UUID      `json:"menu_item_id"`
	Name         string         `json:"name"`
	QuantitySold int64          `json:"quantity_sold"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) GetTopMenuItems(ctx context.Context, arg GetTopMenuItemsParams) ([]GetTopMenuItemsRow, error) {
	rows, err := q.db.Query(ctx, getTopMenuItems, arg.RestaurantID, arg.PaidAt, arg.PaidAt_2, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetTopMenuItemsRow{}
	for rows.Next() {
		var i GetTopMenuItemsRow
		if err := rows.Scan(&i.MenuItemID, &i.Name, &i.QuantitySold, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
