package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const staffColumns = `id, restaurant_id, email, hashed_password, full_name, role, pin, is_active, created_at, updated_at`

func scanStaff(row interface{ Scan(...any) error }) (Staff, error) {
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.Pin,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getStaffByEmail = `-- name: GetStaffByEmail :one
SELECT ` + staffColumns + ` FROM staff
WHERE email = $1 AND is_active = true
`

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, getStaffByEmail, email))
}

const getStaffByID = `-- name: GetStaffByID :one
SELECT ` + staffColumns + ` FROM staff
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetStaffByID(ctx context.Context, id uuid.UUID) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, getStaffByID, id))
}

const getStaffByPin = `-- name: GetStaffByPin :one
SELECT ` + staffColumns + ` FROM staff
WHERE restaurant_id = $1 AND pin = $2 AND is_active = true
`

type GetStaffByPinParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Pin          pgtype.Text `json:"pin"`
}

func (q *Queries) GetStaffByPin(ctx context.Context, arg GetStaffByPinParams) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, getStaffByPin, arg.RestaurantID, arg.Pin))
}

const listStaffByRestaurant = `-- name: ListStaffByRestaurant :many
SELECT ` + staffColumns + ` FROM staff
WHERE restaurant_id = $1 AND is_active = true
ORDER BY full_name
`

func (q *Queries) ListStaffByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]Staff, error) {
	rows, err := q.db.Query(ctx, listStaffByRestaurant, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Staff{}
	for rows.Next() {
		i, err := scanStaff(rows)
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

const createStaff = `-- name: CreateStaff :one
INSERT INTO staff (restaurant_id, email, hashed_password, full_name, role, pin)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + staffColumns + `
`

type CreateStaffParams struct {
	RestaurantID   uuid.UUID   `json:"restaurant_id"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashed_password"`
	FullName       string      `json:"full_name"`
	Role           string      `json:"role"`
	Pin            pgtype.Text `json:"pin"`
}

func (q *Queries) CreateStaff(ctx context.Context, arg CreateStaffParams) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, createStaff,
		arg.RestaurantID,
		arg.Email,
		arg.HashedPassword,
		arg.FullName,
		arg.Role,
		arg.Pin,
	))
}

const updateStaff = `-- name: UpdateStaff :one
UPDATE staff
SET email = $1, full_name = $2, role = $3, pin = $4, updated_at = now()
WHERE id = $5 AND restaurant_id = $6 AND is_active = true
RETURNING ` + staffColumns + `
`

type UpdateStaffParams struct {
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	Role         string      `json:"role"`
	Pin          pgtype.Text `json:"pin"`
	ID           uuid.UUID   `json:"id"`
	RestaurantID uuid.UUID   `json:"restaurant_id"`
}

func (q *Queries) UpdateStaff(ctx context.Context, arg UpdateStaffParams) (Staff, error) {
	return scanStaff(q.db.QueryRow(ctx, updateStaff,
		arg.Email,
		arg.FullName,
		arg.Role,
		arg.Pin,
		arg.ID,
		arg.RestaurantID,
	))
}

const softDeleteStaff = `-- name: SoftDeleteStaff :one
UPDATE staff SET is_active = false, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteStaffParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SoftDeleteStaff(ctx context.Context, arg SoftDeleteStaffParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteStaff, arg.ID, arg.RestaurantID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}
