package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, restaurant_id, number, capacity, status, is_active, created_at, updated_at`

func scanDiningTable(row interface{ Scan(...any) error }) (DiningTable, error) {
	var i DiningTable
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Number,
		&i.Capacity,
		&i.Status,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listTables = `-- name: ListTables :many
SELECT ` + tableColumns + ` FROM dining_tables
WHERE restaurant_id = $1 AND is_active = true
ORDER BY number
`

func (q *Queries) ListTables(ctx context.Context, restaurantID uuid.UUID) ([]DiningTable, error) {
	rows, err := q.db.Query(ctx, listTables, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DiningTable{}
	for rows.Next() {
		i, err := scanDiningTable(rows)
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

const getTable = `-- name: GetTable :one
SELECT ` + tableColumns + ` FROM dining_tables
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
`

type GetTableParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, getTable, arg.ID, arg.RestaurantID))
}

const createTable = `-- name: CreateTable :one
INSERT INTO dining_tables (restaurant_id, number, capacity)
VALUES ($1, $2, $3)
RETURNING ` + tableColumns + `
`

type CreateTableParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, createTable, arg.RestaurantID, arg.Number, arg.Capacity))
}

const updateTable = `-- name: UpdateTable :one
UPDATE dining_tables SET number = $1, capacity = $2, updated_at = now()
WHERE id = $3 AND restaurant_id = $4 AND is_active = true
RETURNING ` + tableColumns + `
`

type UpdateTableParams struct {
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) UpdateTable(ctx context.Context, arg UpdateTableParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, updateTable, arg.Number, arg.Capacity, arg.ID, arg.RestaurantID))
}

const updateTableStatus = `-- name: UpdateTableStatus :one
UPDATE dining_tables SET status = $1, updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND status = $4 AND is_active = true
RETURNING ` + tableColumns + `
`

// UpdateTableStatusParams.Status_2 is the status the caller last read; the
// update only applies if the row still has it.
type UpdateTableStatusParams struct {
	Status       string    `json:"status"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Status_2     string    `json:"status_2"`
}

func (q *Queries) UpdateTableStatus(ctx context.Context, arg UpdateTableStatusParams) (DiningTable, error) {
	return scanDiningTable(q.db.QueryRow(ctx, updateTableStatus, arg.Status, arg.ID, arg.RestaurantID, arg.Status_2))
}

const softDeleteTable = `-- name: SoftDeleteTable :one
UPDATE dining_tables SET is_active = false, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_active = true AND status = 'AVAILABLE'
RETURNING id
`

type SoftDeleteTableParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SoftDeleteTable(ctx context.Context, arg SoftDeleteTableParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteTable, arg.ID, arg.RestaurantID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}
