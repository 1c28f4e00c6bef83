// Package register holds the working state of a staff member's billing
// screen: the cart being built, the active discount, the selected table and
// the cash tendered. Only one discount mechanism is active at a time;
// applying a promo replaces a manual discount and vice versa.
package register

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/cart"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/shopspring/decimal"
)

var (
	ErrNegativeDiscount = errors.New("discount amount must be >= 0")
	ErrNegativeTendered = errors.New("tendered amount must be >= 0")
	ErrInvalidOrderType = errors.New("invalid order_type")
	ErrTableNotDineIn   = errors.New("a table can only be set on DINE_IN orders")
)

// Discount is the single active discount on a register.
type Discount struct {
	Source string          `json:"source"`
	Code   string          `json:"code,omitempty"`
	Amount decimal.Decimal `json:"amount"`
}

// Register is keyed by restaurant and staff member.
type Register struct {
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	StaffID      uuid.UUID       `json:"staff_id"`
	Cart         cart.Cart       `json:"cart"`
	Discount     Discount        `json:"discount"`
	TableID      *uuid.UUID      `json:"table_id"`
	OrderType    string          `json:"order_type"`
	Tendered     decimal.Decimal `json:"tendered"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// New returns an empty dine-in register.
func New(restaurantID, staffID uuid.UUID) *Register {
	return &Register{
		RestaurantID: restaurantID,
		StaffID:      staffID,
		OrderType:    enum.OrderTypeDineIn,
	}
}

// ApplyPromo validates code against the current subtotal and, on success,
// replaces whatever discount was active. On failure the discount is left
// untouched and the resolver's error is returned.
func (r *Register) ApplyPromo(resolver *promo.Resolver, code string) (promo.Applied, error) {
	applied, err := resolver.Validate(code, r.Cart.Subtotal())
	if err != nil {
		return promo.Applied{}, err
	}
	r.Discount = Discount{
		Source: enum.DiscountSourcePromo,
		Code:   applied.Promo.Code,
		Amount: applied.Amount,
	}
	return applied, nil
}

// SetManualDiscount sets a flat manual discount, clearing any promo.
// A zero amount clears the discount.
func (r *Register) SetManualDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeDiscount
	}
	if amount.IsZero() {
		r.ClearDiscount()
		return nil
	}
	r.Discount = Discount{Source: enum.DiscountSourceManual, Amount: amount}
	return nil
}

func (r *Register) ClearDiscount() {
	r.Discount = Discount{}
}

// SetTendered records the cash handed over by the customer.
func (r *Register) SetTendered(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeTendered
	}
	r.Tendered = amount
	return nil
}

// SetOrderType switches between dine-in, takeaway and delivery. Leaving
// dine-in drops the selected table.
func (r *Register) SetOrderType(orderType string) error {
	switch orderType {
	case enum.OrderTypeDineIn:
	case enum.OrderTypeTakeaway, enum.OrderTypeDelivery:
		r.TableID = nil
	default:
		return ErrInvalidOrderType
	}
	r.OrderType = orderType
	return nil
}

// SetTable selects the table the order is for; nil clears it.
func (r *Register) SetTable(tableID *uuid.UUID) error {
	if tableID != nil && r.OrderType != enum.OrderTypeDineIn {
		return ErrTableNotDineIn
	}
	r.TableID = tableID
	return nil
}

// DiscountAmount returns the discount for the current cart. A promo is
// re-validated against the live subtotal; if the cart dropped below its
// minimum the promo yields nothing.
func (r *Register) DiscountAmount(resolver *promo.Resolver) decimal.Decimal {
	switch r.Discount.Source {
	case enum.DiscountSourcePromo:
		applied, err := resolver.Validate(r.Discount.Code, r.Cart.Subtotal())
		if err != nil {
			return decimal.Zero
		}
		return applied.Amount
	case enum.DiscountSourceManual:
		amount, err := pricing.ComputeDiscount(r.Cart.Subtotal(), enum.DiscountTypeFixed, r.Discount.Amount)
		if err != nil {
			return decimal.Zero
		}
		return amount
	}
	return decimal.Zero
}

// Quote prices the register at the given tax rate.
func (r *Register) Quote(resolver *promo.Resolver, taxRate decimal.Decimal) pricing.Quote {
	return pricing.NewQuote(r.Cart.Subtotal(), taxRate, r.DiscountAmount(resolver))
}

// Change returns the change due for the tendered amount against total.
func (r *Register) Change(total decimal.Decimal) decimal.Decimal {
	return pricing.ComputeChange(r.Tendered, total)
}

// Reset clears cart, discount, table and tendered amount. Calling it more
// than once has the same effect as calling it once.
func (r *Register) Reset() {
	r.Cart.Clear()
	r.ClearDiscount()
	r.TableID = nil
	r.OrderType = enum.OrderTypeDineIn
	r.Tendered = decimal.Zero
}
