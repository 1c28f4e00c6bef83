package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Restaurant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Staff struct {
	ID             uuid.UUID   `json:"id"`
	RestaurantID   uuid.UUID   `json:"restaurant_id"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashed_password"`
	FullName       string      `json:"full_name"`
	Role           string      `json:"role"`
	Pin            pgtype.Text `json:"pin"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type MenuItem struct {
	ID           uuid.UUID      `json:"id"`
	RestaurantID uuid.UUID      `json:"restaurant_id"`
	Name         string         `json:"name"`
	Description  pgtype.Text    `json:"description"`
	Category     string         `json:"category"`
	UnitPrice    pgtype.Numeric `json:"unit_price"`
	ImageUrl     pgtype.Text    `json:"image_url"`
	IsAvailable  bool           `json:"is_available"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type DiningTable struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Number       int32     `json:"number"`
	Capacity     int32     `json:"capacity"`
	Status       string    `json:"status"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Order struct {
	ID              uuid.UUID          `json:"id"`
	RestaurantID    uuid.UUID          `json:"restaurant_id"`
	OrderNumber     string             `json:"order_number"`
	OrderType       string             `json:"order_type"`
	Source          string             `json:"source"`
	TableID         pgtype.UUID        `json:"table_id"`
	Status          string             `json:"status"`
	Subtotal        pgtype.Numeric     `json:"subtotal"`
	TaxRate         pgtype.Numeric     `json:"tax_rate"`
	TaxAmount       pgtype.Numeric     `json:"tax_amount"`
	DiscountSource  pgtype.Text        `json:"discount_source"`
	PromoCode       pgtype.Text        `json:"promo_code"`
	DiscountAmount  pgtype.Numeric     `json:"discount_amount"`
	TotalAmount     pgtype.Numeric     `json:"total_amount"`
	Notes           pgtype.Text        `json:"notes"`
	CustomerName    pgtype.Text        `json:"customer_name"`
	CustomerPhone   pgtype.Text        `json:"customer_phone"`
	DeliveryAddress pgtype.Text        `json:"delivery_address"`
	IdempotencyKey  pgtype.Text        `json:"idempotency_key"`
	CreatedBy       pgtype.UUID        `json:"created_by"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	PaidAt          pgtype.Timestamptz `json:"paid_at"`
}

type OrderItem struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Name       string         `json:"name"`
	UnitPrice  pgtype.Numeric `json:"unit_price"`
	Quantity   int32          `json:"quantity"`
	Notes      pgtype.Text    `json:"notes"`
	Subtotal   pgtype.Numeric `json:"subtotal"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Payment struct {
	ID           uuid.UUID          `json:"id"`
	OrderID      uuid.UUID          `json:"order_id"`
	SplitIndex   pgtype.Int4        `json:"split_index"`
	Method       pgtype.Text        `json:"method"`
	Amount       pgtype.Numeric     `json:"amount"`
	Tendered     pgtype.Numeric     `json:"tendered"`
	ChangeAmount pgtype.Numeric     `json:"change_amount"`
	Status       string             `json:"status"`
	ProcessedBy  pgtype.UUID        `json:"processed_by"`
	ProcessedAt  pgtype.Timestamptz `json:"processed_at"`
	CreatedAt    time.Time          `json:"created_at"`
}

type Rider struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Delivery struct {
	ID            uuid.UUID          `json:"id"`
	RestaurantID  uuid.UUID          `json:"restaurant_id"`
	OrderID       uuid.UUID          `json:"order_id"`
	RiderID       pgtype.UUID        `json:"rider_id"`
	Status        string             `json:"status"`
	Address       string             `json:"address"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	DispatchedAt  pgtype.Timestamptz `json:"dispatched_at"`
	DeliveredAt   pgtype.Timestamptz `json:"delivered_at"`
}
