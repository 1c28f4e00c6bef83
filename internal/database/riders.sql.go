package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const riderColumns = `id, restaurant_id, name, phone, status, is_active, created_at, updated_at`

func scanRider(row interface{ Scan(...any) error }) (Rider, error) {
	var i Rider
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Phone,
		&i.Status,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listRiders = `-- name: ListRiders :many
SELECT ` + riderColumns + ` FROM riders
WHERE restaurant_id = $1 AND is_active = true
  AND ($2::text IS NULL OR status = $2)
ORDER BY name
`

type ListRidersParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Status       pgtype.Text `json:"status"`
}

func (q *Queries) ListRiders(ctx context.Context, arg ListRidersParams) ([]Rider, error) {
	rows, err := q.db.Query(ctx, listRiders, arg.RestaurantID, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Rider{}
	for rows.Next() {
		i, err := scanRider(rows)
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

const getRider = `-- name: GetRider :one
SELECT ` + riderColumns + ` FROM riders
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
`

type GetRiderParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetRider(ctx context.Context, arg GetRiderParams) (Rider, error) {
	return scanRider(q.db.QueryRow(ctx, getRider, arg.ID, arg.RestaurantID))
}

const createRider = `-- name: CreateRider :one
INSERT INTO riders (restaurant_id, name, phone)
VALUES ($1, $2, $3)
RETURNING ` + riderColumns + `
`

type CreateRiderParams struct {
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
}

func (q *Queries) CreateRider(ctx context.Context, arg CreateRiderParams) (Rider, error) {
	return scanRider(q.db.QueryRow(ctx, createRider, arg.RestaurantID, arg.Name, arg.Phone))
}

const updateRider = `-- name: UpdateRider :one
UPDATE riders SET name = $1, phone = $2, updated_at = now()
WHERE id = $3 AND restaurant_id = $4 AND is_active = true
RETURNING ` + riderColumns + `
`

type UpdateRiderParams struct {
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) UpdateRider(ctx context.Context, arg UpdateRiderParams) (Rider, error) {
	return scanRider(q.db.QueryRow(ctx, updateRider, arg.Name, arg.Phone, arg.ID, arg.RestaurantID))
}

const updateRiderStatus = `-- name: UpdateRiderStatus :one
UPDATE riders SET status = $1, updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND status = $4 AND is_active = true
RETURNING ` + riderColumns + `
`

// UpdateRiderStatusParams.Status_2 is the status the caller last read.
type UpdateRiderStatusParams struct {
	Status       string    `json:"status"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Status_2     string    `json:"status_2"`
}

func (q *Queries) UpdateRiderStatus(ctx context.Context, arg UpdateRiderStatusParams) (Rider, error) {
	return scanRider(q.db.QueryRow(ctx, updateRiderStatus, arg.Status, arg.ID, arg.RestaurantID, arg.Status_2))
}
