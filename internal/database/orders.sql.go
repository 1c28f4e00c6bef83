package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, restaurant_id, order_number, order_type, source, table_id, status, subtotal, tax_rate, tax_amount, discount_source, promo_code, discount_amount, total_amount, notes, customer_name, customer_phone, delivery_address, idempotency_key, created_by, created_at, updated_at, paid_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.OrderNumber,
		&i.OrderType,
		&i.Source,
		&i.TableID,
		&i.Status,
		&i.Subtotal,
		&i.TaxRate,
		&i.TaxAmount,
		&i.DiscountSource,
		&i.PromoCode,
		&i.DiscountAmount,
		&i.TotalAmount,
		&i.Notes,
		&i.CustomerName,
		&i.CustomerPhone,
		&i.DeliveryAddress,
		&i.IdempotencyKey,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.PaidAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1)::int4 AS next_number
FROM orders
WHERE restaurant_id = $1
`

func (q *Queries) GetNextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, restaurantID)
	var next int32
	err := row.Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    restaurant_id, order_number, order_type, source, table_id, subtotal, tax_rate, tax_amount,
    discount_source, promo_code, discount_amount, total_amount, notes, customer_name,
    customer_phone, delivery_address, idempotency_key, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING ` + orderColumns + `
`

type CreateOrderParams struct {
	RestaurantID    uuid.UUID      `json:"restaurant_id"`
	OrderNumber     string         `json:"order_number"`
	OrderType       string         `json:"order_type"`
	Source          string         `json:"source"`
	TableID         pgtype.UUID    `json:"table_id"`
	Subtotal        pgtype.Numeric `json:"subtotal"`
	TaxRate         pgtype.Numeric `json:"tax_rate"`
	TaxAmount       pgtype.Numeric `json:"tax_amount"`
	DiscountSource  pgtype.Text    `json:"discount_source"`
	PromoCode       pgtype.Text    `json:"promo_code"`
	DiscountAmount  pgtype.Numeric `json:"discount_amount"`
	TotalAmount     pgtype.Numeric `json:"total_amount"`
	Notes           pgtype.Text    `json:"notes"`
	CustomerName    pgtype.Text    `json:"customer_name"`
	CustomerPhone   pgtype.Text    `json:"customer_phone"`
	DeliveryAddress pgtype.Text    `json:"delivery_address"`
	IdempotencyKey  pgtype.Text    `json:"idempotency_key"`
	CreatedBy       pgtype.UUID    `json:"created_by"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.RestaurantID,
		arg.OrderNumber,
		arg.OrderType,
		arg.Source,
		arg.TableID,
		arg.Subtotal,
		arg.TaxRate,
		arg.TaxAmount,
		arg.DiscountSource,
		arg.PromoCode,
		arg.DiscountAmount,
		arg.TotalAmount,
		arg.Notes,
		arg.CustomerName,
		arg.CustomerPhone,
		arg.DeliveryAddress,
		arg.IdempotencyKey,
		arg.CreatedBy,
	))
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND restaurant_id = $2
`

type GetOrderParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.RestaurantID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1 AND restaurant_id = $2
FOR NO KEY UPDATE
`

type GetOrderForUpdateParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.RestaurantID))
}

const getOrderByIdempotencyKey = `-- name: GetOrderByIdempotencyKey :one
SELECT ` + orderColumns + ` FROM orders
WHERE restaurant_id = $1 AND idempotency_key = $2
`

type GetOrderByIdempotencyKeyParams struct {
	RestaurantID   uuid.UUID   `json:"restaurant_id"`
	IdempotencyKey pgtype.Text `json:"idempotency_key"`
}

func (q *Queries) GetOrderByIdempotencyKey(ctx context.Context, arg GetOrderByIdempotencyKeyParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByIdempotencyKey, arg.RestaurantID, arg.IdempotencyKey))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR order_type = $3)
  AND ($4::uuid IS NULL OR table_id = $4)
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at < $6)
ORDER BY created_at DESC
LIMIT $7 OFFSET $8
`

type ListOrdersParams struct {
	RestaurantID uuid.UUID          `json:"restaurant_id"`
	Status       pgtype.Text        `json:"status"`
	OrderType    pgtype.Text        `json:"order_type"`
	TableID      pgtype.UUID        `json:"table_id"`
	StartDate    pgtype.Timestamptz `json:"start_date"`
	EndDate      pgtype.Timestamptz `json:"end_date"`
	Limit        int32              `json:"limit"`
	Offset       int32              `json:"offset"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.RestaurantID,
		arg.Status,
		arg.OrderType,
		arg.TableID,
		arg.StartDate,
		arg.EndDate,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $1,
    paid_at = CASE WHEN $1 = 'PAID' THEN now() ELSE paid_at END,
    updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND status = $4
RETURNING ` + orderColumns + `
`

// UpdateOrderStatusParams.Status_2 is the status the caller last read.
type UpdateOrderStatusParams struct {
	Status       string    `json:"status"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Status_2     string    `json:"status_2"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.Status, arg.ID, arg.RestaurantID, arg.Status_2))
}

const countOpenOrdersByTable = `-- name: CountOpenOrdersByTable :one
SELECT COUNT(*) FROM orders
WHERE table_id = $1 AND status = 'OPEN'
`

func (q *Queries) CountOpenOrdersByTable(ctx context.Context, tableID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countOpenOrdersByTable, tableID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
