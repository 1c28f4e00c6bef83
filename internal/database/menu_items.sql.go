package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, restaurant_id, name, description, category, unit_price, image_url, is_available, is_active, created_at, updated_at`

func scanMenuItem(row interface{ Scan(...any) error }) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.Name,
		&i.Description,
		&i.Category,
		&i.UnitPrice,
		&i.ImageUrl,
		&i.IsAvailable,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listMenuItems = `-- name: ListMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE restaurant_id = $1
  AND is_active = true
  AND ($2::text IS NULL OR category = $2)
  AND (NOT $3::bool OR is_available = true)
  AND ($4::text IS NULL OR name ILIKE '%' || $4 || '%')
ORDER BY category, name
`

type ListMenuItemsParams struct {
	RestaurantID  uuid.UUID   `json:"restaurant_id"`
	Category      pgtype.Text `json:"category"`
	AvailableOnly bool        `json:"available_only"`
	Search        pgtype.Text `json:"search"`
}

func (q *Queries) ListMenuItems(ctx context.Context, arg ListMenuItemsParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems, arg.RestaurantID, arg.Category, arg.AvailableOnly, arg.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		i, err := scanMenuItem(rows)
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

const getMenuItem = `-- name: GetMenuItem :one
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
`

type GetMenuItemParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, arg.ID, arg.RestaurantID))
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (restaurant_id, name, description, category, unit_price, image_url, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + menuItemColumns + `
`

type CreateMenuItemParams struct {
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	Name         string         `json:"name"`
	Description  pgtype.Text    `json:"description"`
	Category     string         `json:"category"`
	UnitPrice    pgtype.Numeric `json:"unit_price"`
	ImageUrl     pgtype.Text    `json:"image_url"`
	IsAvailable  bool           `json:"is_available"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, createMenuItem,
		arg.RestaurantID,
		arg.Name,
		arg.Description,
		arg.Category,
		arg.UnitPrice,
		arg.ImageUrl,
		arg.IsAvailable,
	))
}

const updateMenuItem = `-- name: UpdateMenuItem :one
UPDATE menu_items
SET name = $1, description = $2, category = $3, unit_price = $4, image_url = $5,
    is_available = $6, updated_at = now()
WHERE id = $7 AND restaurant_id = $8 AND is_active = true
RETURNING ` + menuItemColumns + `
`

type UpdateMenuItemParams struct {
	Name         string         `json:"name"`
	Description  pgtype.Text    `json:"description"`
	Category     string         `json:"category"`
	UnitPrice    pgtype.Numeric `json:"unit_price"`
	ImageUrl     pgtype.Text    `json:"image_url"`
	IsAvailable  bool           `json:"is_available"`
	ID           uuid.UUID      `json:"id"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, updateMenuItem,
		arg.Name,
		arg.Description,
		arg.Category,
		arg.UnitPrice,
		arg.ImageUrl,
		arg.IsAvailable,
		arg.ID,
		arg.RestaurantID,
	))
}

const setMenuItemAvailability = `-- name: SetMenuItemAvailability :one
UPDATE menu_items SET is_available = $1, updated_at = now()
WHERE id = $2 AND restaurant_id = $3 AND is_active = true
RETURNING ` + menuItemColumns + `
`

type SetMenuItemAvailabilityParams struct {
	IsAvailable  bool      `json:"is_available"`
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SetMenuItemAvailability(ctx context.Context, arg SetMenuItemAvailabilityParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, setMenuItemAvailability, arg.IsAvailable, arg.ID, arg.RestaurantID))
}

const softDeleteMenuItem = `-- name: SoftDeleteMenuItem :one
UPDATE menu_items SET is_active = false, updated_at = now()
WHERE id = $1 AND restaurant_id = $2 AND is_active = true
RETURNING id
`

type SoftDeleteMenuItemParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) SoftDeleteMenuItem(ctx context.Context, arg SoftDeleteMenuItemParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, softDeleteMenuItem, arg.ID, arg.RestaurantID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}
