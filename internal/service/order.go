package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/cart"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/saffron-pos/api/internal/status"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems         = errors.New("items are required")
	ErrInvalidOrderType   = errors.New("invalid order_type")
	ErrInvalidSource      = errors.New("invalid order source")
	ErrInvalidQuantity    = fmt.Errorf("quantity must be between 1 and %d", cart.MaxQuantity)
	ErrMenuItemNotFound   = errors.New("menu item not found in restaurant")
	ErrMenuItemSoldOut    = errors.New("menu item is not available")
	ErrTableNotFound      = errors.New("table not found")
	ErrTableRequired      = errors.New("table_id is required for customer orders")
	ErrTableNotAllowed    = errors.New("table_id is only allowed for DINE_IN orders")
	ErrDeliveryDetails    = errors.New("delivery orders need customer_name, customer_phone and delivery_address")
	ErrNegativeDiscount   = errors.New("discount amount must be >= 0")
	ErrInvalidDiscountSrc = errors.New("invalid discount source")
	ErrConflict           = errors.New("record was modified concurrently, reload and retry")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to place orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	GetOrderByIdempotencyKey(ctx context.Context, arg database.GetOrderByIdempotencyKeyParams) (database.Order, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.DiningTable, error)
	UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.DiningTable, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	CreateDelivery(ctx context.Context, arg database.CreateDeliveryParams) (database.Delivery, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	RestaurantID    uuid.UUID
	CreatedBy       uuid.UUID // uuid.Nil for customer self-orders
	Source          string
	OrderType       string
	TableID         *uuid.UUID
	Items           []PlaceOrderItem
	Discount        DiscountRequest
	Notes           string
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	IdempotencyKey  string
}

// PlaceOrderItem is a single menu item in the order.
type PlaceOrderItem struct {
	MenuItemID uuid.UUID
	Quantity   int32
	Notes      string
}

// DiscountRequest selects at most one discount: a promo code or a manual
// amount.
type DiscountRequest struct {
	Source    string
	PromoCode string
	Amount    decimal.Decimal
}

// PlaceOrderResult is the stored order with its lines. Existing is true when
// the idempotency key matched an order placed earlier.
type PlaceOrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Delivery *database.Delivery
	Table    *database.DiningTable
	Existing bool
}

// OrderService places orders from carts.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	taxRate  decimal.Decimal
	promos   *promo.Resolver
	pub      events.Publisher
}

// NewOrderService creates a new OrderService. A nil publisher discards
// change events.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, taxRate decimal.Decimal, promos *promo.Resolver, pub events.Publisher) *OrderService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &OrderService{pool: pool, newStore: newStore, taxRate: taxRate, promos: promos, pub: pub}
}

// TaxRate is the rate applied to new orders.
func (s *OrderService) TaxRate() decimal.Decimal {
	return s.taxRate
}

// PlaceOrder validates, prices and stores an order atomically.
// Retries up to maxOrderNumberRetries times when a concurrent transaction
// takes the same order number or idempotency key.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.placeOrderOnce(ctx, req)
		if err == nil {
			if !result.Existing {
				s.publishPlaced(ctx, result)
			}
			return result, nil
		}
		if isRetryableConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) placeOrderOnce(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	result, err := s.placeTx(ctx, s.newStore(tx), req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// FindByIdempotencyKey returns the order placed earlier under key, with
// Existing set. ErrOrderNotFound means no order carries the key.
func (s *OrderService) FindByIdempotencyKey(ctx context.Context, restaurantID uuid.UUID, key string) (*PlaceOrderResult, error) {
	if key == "" {
		return nil, ErrOrderNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := lookupIdempotent(ctx, s.newStore(tx), restaurantID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrOrderNotFound
	}
	return existing, nil
}

// lookupIdempotent loads the order stored under key. It returns nil, nil
// when there is none.
func lookupIdempotent(ctx context.Context, store OrderStore, restaurantID uuid.UUID, key string) (*PlaceOrderResult, error) {
	existing, err := store.GetOrderByIdempotencyKey(ctx, database.GetOrderByIdempotencyKeyParams{
		RestaurantID:   restaurantID,
		IdempotencyKey: database.Text(key),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by idempotency key: %w", err)
	}
	items, err := store.ListOrderItemsByOrder(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &PlaceOrderResult{Order: existing, Items: items, Existing: true}, nil
}

// placeTx runs the placement steps against a store bound to an open tx.
func (s *OrderService) placeTx(ctx context.Context, store OrderStore, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	// --- Idempotency ---
	if req.IdempotencyKey != "" {
		existing, err := lookupIdempotent(ctx, store, req.RestaurantID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	// --- Build cart from the catalog ---
	var c cart.Cart
	for i, item := range req.Items {
		mi, err := store.GetMenuItem(ctx, database.GetMenuItemParams{
			ID:           item.MenuItemID,
			RestaurantID: req.RestaurantID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get menu item: %w", i, err)
		}
		line, err := c.AddItem(cart.MenuItem{
			ID:        mi.ID,
			Name:      mi.Name,
			UnitPrice: database.DecimalFromNumeric(mi.UnitPrice),
			Category:  mi.Category,
			Available: mi.IsAvailable,
		})
		if err != nil {
			if errors.Is(err, cart.ErrItemUnavailable) {
				return nil, fmt.Errorf("item[%d] %s: %w", i, mi.Name, ErrMenuItemSoldOut)
			}
			if errors.Is(err, cart.ErrQuantityTooLarge) {
				return nil, fmt.Errorf("item[%d] %s: %w", i, mi.Name, ErrInvalidQuantity)
			}
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		// AddItem counted one; a repeated menu item accumulates.
		if err := c.UpdateQuantity(line.ID, item.Quantity-1); err != nil {
			if errors.Is(err, cart.ErrQuantityTooLarge) {
				return nil, fmt.Errorf("item[%d] %s: %w", i, mi.Name, ErrInvalidQuantity)
			}
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		if item.Notes != "" {
			_ = c.SetNotes(line.ID, item.Notes)
		}
	}

	// --- Price ---
	subtotal := c.Subtotal()
	discountSource := pgtype.Text{}
	promoCode := pgtype.Text{}
	discount := decimal.Zero
	switch req.Discount.Source {
	case enum.DiscountSourceNone:
	case enum.DiscountSourcePromo:
		applied, err := s.promos.Validate(req.Discount.PromoCode, subtotal)
		if err != nil {
			return nil, err
		}
		discount = applied.Amount
		discountSource = database.Text(enum.DiscountSourcePromo)
		promoCode = database.Text(applied.Promo.Code)
	case enum.DiscountSourceManual:
		amount, err := pricing.ComputeDiscount(subtotal, enum.DiscountTypeFixed, req.Discount.Amount)
		if err != nil {
			return nil, err
		}
		discount = amount
		if discount.IsPositive() {
			discountSource = database.Text(enum.DiscountSourceManual)
		}
	}
	quote := pricing.NewQuote(subtotal, s.taxRate, discount)

	// --- Seat the table ---
	tableID := pgtype.UUID{}
	var seated *database.DiningTable
	if req.TableID != nil {
		table, err := store.GetTable(ctx, database.GetTableParams{
			ID:           *req.TableID,
			RestaurantID: req.RestaurantID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrTableNotFound
			}
			return nil, fmt.Errorf("get table: %w", err)
		}
		if table.Status != enum.TableStatusOccupied {
			if err := status.Transition(status.Table, table.Status, enum.TableStatusOccupied); err != nil {
				return nil, err
			}
			updated, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
				Status:       enum.TableStatusOccupied,
				ID:           table.ID,
				RestaurantID: req.RestaurantID,
				Status_2:     table.Status,
			})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, ErrConflict
				}
				return nil, fmt.Errorf("update table status: %w", err)
			}
			seated = &updated
		}
		tableID = pgtype.UUID{Bytes: table.ID, Valid: true}
	}

	// --- Order number ---
	nextNum, err := store.GetNextOrderNumber(ctx, req.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	createdBy := pgtype.UUID{}
	if req.CreatedBy != uuid.Nil {
		createdBy = pgtype.UUID{Bytes: req.CreatedBy, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		RestaurantID:    req.RestaurantID,
		OrderNumber:     fmt.Sprintf("ORD-%04d", nextNum),
		OrderType:       req.OrderType,
		Source:          req.Source,
		TableID:         tableID,
		Subtotal:        database.Money(quote.Subtotal),
		TaxRate:         database.NumericFromDecimal(s.taxRate, 4),
		TaxAmount:       database.Money(quote.Tax),
		DiscountSource:  discountSource,
		PromoCode:       promoCode,
		DiscountAmount:  database.Money(quote.Discount),
		TotalAmount:     database.Money(quote.Total),
		Notes:           database.Text(req.Notes),
		CustomerName:    database.Text(req.CustomerName),
		CustomerPhone:   database.Text(req.CustomerPhone),
		DeliveryAddress: database.Text(req.DeliveryAddress),
		IdempotencyKey:  database.Text(req.IdempotencyKey),
		CreatedBy:       createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(c.Lines))
	for _, line := range c.Lines {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			UnitPrice:  database.Money(line.UnitPrice),
			Quantity:   line.Quantity,
			Notes:      database.Text(line.Notes),
			Subtotal:   database.Money(line.Total()),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	result := &PlaceOrderResult{Order: order, Items: items, Table: seated}

	if req.OrderType == enum.OrderTypeDelivery {
		delivery, err := store.CreateDelivery(ctx, database.CreateDeliveryParams{
			RestaurantID:  req.RestaurantID,
			OrderID:       order.ID,
			Address:       req.DeliveryAddress,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
		})
		if err != nil {
			return nil, fmt.Errorf("create delivery: %w", err)
		}
		result.Delivery = &delivery
	}

	return result, nil
}

func (s *OrderService) publishPlaced(ctx context.Context, r *PlaceOrderResult) {
	change := events.NewChange(events.CollectionOrders, events.ActionInsert, r.Order.RestaurantID, r.Order.ID, r.Order)
	if r.Order.TableID.Valid {
		change = change.ForTable(uuid.UUID(r.Order.TableID.Bytes))
	}
	_ = s.pub.Publish(ctx, change)

	if r.Table != nil {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionTables, events.ActionUpdate, r.Table.RestaurantID, r.Table.ID, r.Table))
	}
	if r.Delivery != nil {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionDeliveries, events.ActionInsert, r.Delivery.RestaurantID, r.Delivery.ID, r.Delivery))
	}
}

// --- Helpers ---

func validatePlaceOrder(req PlaceOrderRequest) error {
	switch req.OrderType {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeDelivery:
	default:
		return ErrInvalidOrderType
	}
	switch req.Source {
	case enum.OrderSourceStaff:
	case enum.OrderSourceCustomer:
		if req.TableID == nil {
			return ErrTableRequired
		}
	default:
		return ErrInvalidSource
	}
	if req.TableID != nil && req.OrderType != enum.OrderTypeDineIn {
		return ErrTableNotAllowed
	}
	if req.OrderType == enum.OrderTypeDelivery &&
		(req.CustomerName == "" || req.CustomerPhone == "" || req.DeliveryAddress == "") {
		return ErrDeliveryDetails
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 || item.Quantity > cart.MaxQuantity {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
	}
	switch req.Discount.Source {
	case enum.DiscountSourceNone, enum.DiscountSourcePromo:
	case enum.DiscountSourceManual:
		if req.Discount.Amount.IsNegative() {
			return ErrNegativeDiscount
		}
	default:
		return ErrInvalidDiscountSrc
	}
	return nil
}

// isRetryableConflict reports a unique violation on the order number or
// idempotency key, both of which a retry resolves.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName == "orders_restaurant_id_order_number_key" ||
			pgErr.ConstraintName == "orders_restaurant_id_idempotency_key_key"
	}
	return false
}
