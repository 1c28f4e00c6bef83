package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const deliveryColumns = `id, restaurant_id, order_id, rider_id, status, address, customer_name, customer_phone, created_at, updated_at, dispatched_at, delivered_at`

func scanDelivery(row interface{ Scan(...any) error }) (Delivery, error) {
	var i Delivery
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.OrderID,
		&i.RiderID,
		&i.Status,
		&i.Address,
		&i.CustomerName,
		&i.CustomerPhone,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.DispatchedAt,
		&i.DeliveredAt,
	)
	return i, err
}

const createDelivery = `-- name: CreateDelivery :one
INSERT INTO deliveries (restaurant_id, order_id, address, customer_name, customer_phone)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + deliveryColumns + `
`

type CreateDeliveryParams struct {
	RestaurantID  uuid.UUID `json:"restaurant_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Address       string    `json:"address"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, createDelivery,
		arg.RestaurantID,
		arg.OrderID,
		arg.Address,
		arg.CustomerName,
		arg.CustomerPhone,
	))
}

const getDelivery = `-- name: GetDelivery :one
SELECT ` + deliveryColumns + ` FROM deliveries
WHERE id = $1 AND restaurant_id = $2
`

type GetDeliveryParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetDelivery(ctx context.Context, arg GetDeliveryParams) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, getDelivery, arg.ID, arg.RestaurantID))
}

const listDeliveries = `-- name: ListDeliveries :many
SELECT ` + deliveryColumns + ` FROM deliveries
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR rider_id = $3)
ORDER BY created_at
`

type ListDeliveriesParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Status       pgtype.Text `json:"status"`
	RiderID      pgtype.UUID `json:"rider_id"`
}

func (q *Queries) ListDeliveries(ctx context.Context, arg ListDeliveriesParams) ([]Delivery, error) {
	rows, err := q.db.Query(ctx, listDeliveries, arg.RestaurantID, arg.Status, arg.RiderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Delivery{}
	for rows.Next() {
		i, err := scanDelivery(rows)
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

const updateDeliveryStatus = `-- name: UpdateDeliveryStatus :one
UPDATE deliveries
SET status = $1,
    delivered_at = CASE WHEN $1 = 'DELIVERED' THEN now() ELSE delivered_at END,
    updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND status = $4
RETURNING ` + deliveryColumns + `
`

// UpdateDeliveryStatusParams.Status_2 is the status the caller last read.
type UpdateDeliveryStatusParams struct {
	Status       string    `json:"status"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Status_2     string    `json:"status_2"`
}

func (q *Queries) UpdateDeliveryStatus(ctx context.Context, arg UpdateDeliveryStatusParams) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, updateDeliveryStatus, arg.Status, arg.ID, arg.RestaurantID, arg.Status_2))
}

const dispatchDelivery = `-- name: DispatchDelivery :one
UPDATE deliveries
SET status = 'DISPATCHED', rider_id = $1, dispatched_at = now(), updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND status = 'READY'
RETURNING ` + deliveryColumns + `
`

type DispatchDeliveryParams struct {
	RiderID      pgtype.UUID `json:"rider_id"`
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
}

func (q *Queries) DispatchDelivery(ctx context.Context, arg DispatchDeliveryParams) (Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, dispatchDelivery, arg.RiderID, arg.ID, arg.RestaurantID))
}
