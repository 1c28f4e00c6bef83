package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/split"
	"github.com/saffron-pos/api/internal/status"
	"github.com/shopspring/decimal"
)

// Errors returned by the settlement service.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrInsufficientCash   = errors.New("tendered amount is less than the amount due")
	ErrPendingSplits      = errors.New("order has pending split payments, settle them individually")
	ErrSplitNotFound      = errors.New("split payment not found")
	ErrSplitSettled       = errors.New("split payment is already settled")
	ErrSplitAfterPayment  = errors.New("order already has completed payments")
	ErrInvalidSplitMode   = errors.New("split mode must be EQUAL, AMOUNT or ITEMS")
	ErrCancelWithPayments = errors.New("cannot cancel an order with completed payments")
)

// Split modes.
const (
	SplitModeEqual  = "EQUAL"
	SplitModeAmount = "AMOUNT"
	SplitModeItems  = "ITEMS"
)

// SettlementStore defines the DB methods needed to take payments.
// Satisfied by *database.Queries (and its WithTx variant).
type SettlementStore interface {
	OrderStore
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CountOpenOrdersByTable(ctx context.Context, tableID pgtype.UUID) (int64, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	CompletePayment(ctx context.Context, arg database.CompletePaymentParams) (database.Payment, error)
	DeletePendingPayments(ctx context.Context, orderID uuid.UUID) error
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db database.DBTX) SettlementStore

// Tender is how a payer pays: method plus the amount handed over. Tendered
// is ignored for card and mobile payments.
type Tender struct {
	Method   string
	Tendered decimal.Decimal
}

// SettleRequest settles a whole order with one payment.
type SettleRequest struct {
	RestaurantID uuid.UUID
	OrderID      uuid.UUID
	ProcessedBy  uuid.UUID
	Tender
}

// SettleResult is the paid order and the payment that paid it.
type SettleResult struct {
	Order   database.Order
	Payment database.Payment
	Table   *database.DiningTable
	// Items and Delivery are only populated by Checkout.
	Items    []database.OrderItem
	Delivery *database.Delivery
	// Existing is true when Checkout matched an idempotency key.
	Existing bool
}

// SplitRequest divides an open order into pending payments.
type SplitRequest struct {
	RestaurantID uuid.UUID
	OrderID      uuid.UUID
	Mode         string
	Count        int
	Amounts      []decimal.Decimal
	Assignment   map[uuid.UUID]int // order item id -> payer index
}

// SplitResult is the order with its pending split payments.
type SplitResult struct {
	Order    database.Order
	Shares   []split.Share
	Payments []database.Payment
}

// SettleSplitRequest pays one pending split.
type SettleSplitRequest struct {
	RestaurantID uuid.UUID
	OrderID      uuid.UUID
	PaymentID    uuid.UUID
	ProcessedBy  uuid.UUID
	Tender
}

// SettleSplitResult is the settled split and the order, PAID once no
// splits remain pending.
type SettleSplitResult struct {
	Order     database.Order
	Payment   database.Payment
	Remaining int
	Table     *database.DiningTable
}

// SettlementService takes payments against orders.
type SettlementService struct {
	pool     TxBeginner
	newStore NewSettlementStore
	orders   *OrderService
	pub      events.Publisher
}

// NewSettlementService creates a new SettlementService. Checkout places
// orders through the given OrderService.
func NewSettlementService(pool TxBeginner, newStore NewSettlementStore, orders *OrderService, pub events.Publisher) *SettlementService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &SettlementService{pool: pool, newStore: newStore, orders: orders, pub: pub}
}

// Settle pays an OPEN order in full and marks it PAID.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if !pricing.IsValidMethod(req.Method) {
		return nil, ErrInvalidMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := lockOpenOrder(ctx, store, req.RestaurantID, req.OrderID, enum.OrderStatusPaid)
	if err != nil {
		return nil, err
	}

	result, err := settleTx(ctx, store, order, req.ProcessedBy, req.Tender)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.publishSettled(ctx, result.Order, []database.Payment{result.Payment}, result.Table)
	return result, nil
}

// Checkout places and settles an order in a single transaction. This is the
// counter sale: nothing is stored unless payment succeeds.
func (s *SettlementService) Checkout(ctx context.Context, req PlaceOrderRequest, tender Tender) (*SettleResult, error) {
	if !pricing.IsValidMethod(tender.Method) {
		return nil, ErrInvalidMethod
	}
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.checkoutOnce(ctx, req, tender)
		if err == nil {
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

func (s *SettlementService) checkoutOnce(ctx context.Context, req PlaceOrderRequest, tender Tender) (*SettleResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	placed, err := s.orders.placeTx(ctx, store, req)
	if err != nil {
		return nil, err
	}
	if placed.Existing {
		// A repeated submission: report what was stored the first time.
		return replayCheckout(ctx, store, placed)
	}

	result, err := settleTx(ctx, store, placed.Order, req.CreatedBy, tender)
	if err != nil {
		return nil, err
	}
	result.Items = placed.Items
	result.Delivery = placed.Delivery

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.orders.publishPlaced(ctx, placed)
	s.publishSettled(ctx, result.Order, []database.Payment{result.Payment}, result.Table)
	return result, nil
}

// FindCheckout returns the counter sale stored earlier under key, with
// Existing set. ErrOrderNotFound means no order carries the key.
func (s *SettlementService) FindCheckout(ctx context.Context, restaurantID uuid.UUID, key string) (*SettleResult, error) {
	if key == "" {
		return nil, ErrOrderNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	placed, err := lookupIdempotent(ctx, store, restaurantID, key)
	if err != nil {
		return nil, err
	}
	if placed == nil {
		return nil, ErrOrderNotFound
	}
	return replayCheckout(ctx, store, placed)
}

func replayCheckout(ctx context.Context, store SettlementStore, placed *PlaceOrderResult) (*SettleResult, error) {
	payments, err := store.ListPaymentsByOrder(ctx, placed.Order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	result := &SettleResult{Order: placed.Order, Items: placed.Items, Existing: true}
	if len(payments) > 0 {
		result.Payment = payments[0]
	}
	return result, nil
}

// CreateSplits replaces any pending splits on an OPEN order with a new
// allocation. Orders with completed payments cannot be re-split.
func (s *SettlementService) CreateSplits(ctx context.Context, req SplitRequest) (*SplitResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := lockOpenOrder(ctx, store, req.RestaurantID, req.OrderID, enum.OrderStatusPaid)
	if err != nil {
		return nil, err
	}

	existing, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range existing {
		if p.Status == enum.PaymentStatusCompleted {
			return nil, ErrSplitAfterPayment
		}
	}

	total := database.DecimalFromNumeric(order.TotalAmount)
	var shares []split.Share
	switch req.Mode {
	case SplitModeEqual:
		shares, err = split.ByCount(total, req.Count)
	case SplitModeAmount:
		shares, err = split.ByAmount(total, req.Amounts)
	case SplitModeItems:
		items, lerr := store.ListOrderItemsByOrder(ctx, order.ID)
		if lerr != nil {
			return nil, fmt.Errorf("list order items: %w", lerr)
		}
		lines := make([]split.ItemLine, len(items))
		for i, it := range items {
			lines[i] = split.ItemLine{ID: it.ID, Amount: database.DecimalFromNumeric(it.Subtotal)}
		}
		shares, err = split.ByItems(lines, req.Assignment, req.Count, orderQuote(order))
	default:
		return nil, ErrInvalidSplitMode
	}
	if err != nil {
		return nil, err
	}

	if err := store.DeletePendingPayments(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("delete pending payments: %w", err)
	}

	payments := make([]database.Payment, 0, len(shares))
	for _, sh := range shares {
		p, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:    order.ID,
			SplitIndex: pgtype.Int4{Int32: int32(sh.Index), Valid: true},
			Amount:     database.Money(sh.Amount),
			Status:     enum.PaymentStatusPending,
		})
		if err != nil {
			return nil, fmt.Errorf("create split payment: %w", err)
		}
		payments = append(payments, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	for _, p := range payments {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionPayments, events.ActionInsert, order.RestaurantID, p.ID, p))
	}
	return &SplitResult{Order: order, Shares: shares, Payments: payments}, nil
}

// SettleSplit pays one pending split. The order becomes PAID when the last
// pending split is settled.
func (s *SettlementService) SettleSplit(ctx context.Context, req SettleSplitRequest) (*SettleSplitResult, error) {
	if !pricing.IsValidMethod(req.Method) {
		return nil, ErrInvalidMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := lockOpenOrder(ctx, store, req.RestaurantID, req.OrderID, enum.OrderStatusPaid)
	if err != nil {
		return nil, err
	}

	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	var target *database.Payment
	pending := 0
	for i := range payments {
		if payments[i].ID == req.PaymentID {
			target = &payments[i]
		}
		if payments[i].Status == enum.PaymentStatusPending {
			pending++
		}
	}
	if target == nil {
		return nil, ErrSplitNotFound
	}
	if target.Status != enum.PaymentStatusPending {
		return nil, ErrSplitSettled
	}

	due := database.DecimalFromNumeric(target.Amount)
	tendered := tenderedFor(req.Tender, due)
	if !pricing.CanSettle(req.Method, tendered, due) {
		return nil, ErrInsufficientCash
	}

	paid, err := store.CompletePayment(ctx, database.CompletePaymentParams{
		Method:       database.Text(req.Method),
		Tendered:     database.Money(tendered),
		ChangeAmount: database.Money(pricing.ComputeChange(tendered, due)),
		ProcessedBy:  pgtype.UUID{Bytes: req.ProcessedBy, Valid: req.ProcessedBy != uuid.Nil},
		ID:           target.ID,
		OrderID:      order.ID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("complete payment: %w", err)
	}

	result := &SettleSplitResult{Order: order, Payment: paid, Remaining: pending - 1}
	if result.Remaining == 0 {
		updated, table, err := markPaid(ctx, store, order)
		if err != nil {
			return nil, err
		}
		result.Order = updated
		result.Table = table
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	_ = s.pub.Publish(ctx, events.NewChange(events.CollectionPayments, events.ActionUpdate, order.RestaurantID, paid.ID, paid))
	if result.Remaining == 0 {
		s.publishSettled(ctx, result.Order, nil, result.Table)
	}
	return result, nil
}

// Cancel moves an OPEN order to CANCELLED, dropping pending splits and
// releasing its table when no other open order sits there.
func (s *SettlementService) Cancel(ctx context.Context, restaurantID, orderID uuid.UUID) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	order, err := lockOpenOrder(ctx, store, restaurantID, orderID, enum.OrderStatusCancelled)
	if err != nil {
		return database.Order{}, err
	}

	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return database.Order{}, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range payments {
		if p.Status == enum.PaymentStatusCompleted {
			return database.Order{}, ErrCancelWithPayments
		}
	}
	if err := store.DeletePendingPayments(ctx, order.ID); err != nil {
		return database.Order{}, fmt.Errorf("delete pending payments: %w", err)
	}

	cancelled, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		Status:       enum.OrderStatusCancelled,
		ID:           order.ID,
		RestaurantID: order.RestaurantID,
		Status_2:     enum.OrderStatusOpen,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrConflict
		}
		return database.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	table, err := releaseTable(ctx, store, cancelled)
	if err != nil {
		return database.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	_ = s.pub.Publish(ctx, orderChange(cancelled))
	if table != nil {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionTables, events.ActionUpdate, table.RestaurantID, table.ID, table))
	}
	return cancelled, nil
}

func (s *SettlementService) publishSettled(ctx context.Context, order database.Order, payments []database.Payment, table *database.DiningTable) {
	for _, p := range payments {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionPayments, events.ActionInsert, order.RestaurantID, p.ID, p))
	}
	_ = s.pub.Publish(ctx, orderChange(order))
	if table != nil {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionTables, events.ActionUpdate, table.RestaurantID, table.ID, table))
	}
}

// --- Helpers ---

// lockOpenOrder loads the order FOR NO KEY UPDATE and checks it may move to
// next.
func lockOpenOrder(ctx context.Context, store SettlementStore, restaurantID, orderID uuid.UUID, next string) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:           orderID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("lock order: %w", err)
	}
	if err := status.Transition(status.Order, order.Status, next); err != nil {
		return database.Order{}, err
	}
	return order, nil
}

// settleTx records a single COMPLETED payment for the full order total and
// marks the order PAID.
func settleTx(ctx context.Context, store SettlementStore, order database.Order, processedBy uuid.UUID, tender Tender) (*SettleResult, error) {
	existing, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range existing {
		if p.Status == enum.PaymentStatusPending {
			return nil, ErrPendingSplits
		}
	}

	total := database.DecimalFromNumeric(order.TotalAmount)
	tendered := tenderedFor(tender, total)
	if !pricing.CanSettle(tender.Method, tendered, total) {
		return nil, ErrInsufficientCash
	}

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:      order.ID,
		Method:       database.Text(tender.Method),
		Amount:       database.Money(total),
		Tendered:     database.Money(tendered),
		ChangeAmount: database.Money(pricing.ComputeChange(tendered, total)),
		Status:       enum.PaymentStatusCompleted,
		ProcessedBy:  pgtype.UUID{Bytes: processedBy, Valid: processedBy != uuid.Nil},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	paid, table, err := markPaid(ctx, store, order)
	if err != nil {
		return nil, err
	}
	return &SettleResult{Order: paid, Payment: payment, Table: table}, nil
}

// markPaid flips an OPEN order to PAID and frees its table.
func markPaid(ctx context.Context, store SettlementStore, order database.Order) (database.Order, *database.DiningTable, error) {
	paid, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		Status:       enum.OrderStatusPaid,
		ID:           order.ID,
		RestaurantID: order.RestaurantID,
		Status_2:     enum.OrderStatusOpen,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, nil, ErrConflict
		}
		return database.Order{}, nil, fmt.Errorf("mark order paid: %w", err)
	}
	table, err := releaseTable(ctx, store, paid)
	if err != nil {
		return database.Order{}, nil, err
	}
	return paid, table, nil
}

// releaseTable returns the order's table to AVAILABLE once no open orders
// remain on it. Tables already AVAILABLE are left alone.
func releaseTable(ctx context.Context, store SettlementStore, order database.Order) (*database.DiningTable, error) {
	if !order.TableID.Valid {
		return nil, nil
	}
	open, err := store.CountOpenOrdersByTable(ctx, order.TableID)
	if err != nil {
		return nil, fmt.Errorf("count open orders: %w", err)
	}
	if open > 0 {
		return nil, nil
	}

	table, err := store.GetTable(ctx, database.GetTableParams{
		ID:           uuid.UUID(order.TableID.Bytes),
		RestaurantID: order.RestaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get table: %w", err)
	}
	if status.Transition(status.Table, table.Status, enum.TableStatusAvailable) != nil {
		return nil, nil
	}
	updated, err := store.UpdateTableStatus(ctx, database.UpdateTableStatusParams{
		Status:       enum.TableStatusAvailable,
		ID:           table.ID,
		RestaurantID: order.RestaurantID,
		Status_2:     table.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("release table: %w", err)
	}
	return &updated, nil
}

// tenderedFor defaults the tendered amount to the amount due for non-cash
// payments.
func tenderedFor(t Tender, due decimal.Decimal) decimal.Decimal {
	if t.Method != enum.PaymentMethodCash {
		return due
	}
	return t.Tendered
}

// orderQuote rebuilds the stored pricing of an order.
func orderQuote(o database.Order) pricing.Quote {
	return pricing.Quote{
		Subtotal: database.DecimalFromNumeric(o.Subtotal),
		Tax:      database.DecimalFromNumeric(o.TaxAmount),
		Discount: database.DecimalFromNumeric(o.DiscountAmount),
		Total:    database.DecimalFromNumeric(o.TotalAmount),
	}
}

func orderChange(o database.Order) events.Change {
	c := events.NewChange(events.CollectionOrders, events.ActionUpdate, o.RestaurantID, o.ID, o)
	if o.TableID.Valid {
		c = c.ForTable(uuid.UUID(o.TableID.Bytes))
	}
	return c
}
