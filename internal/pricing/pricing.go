// Package pricing holds the money arithmetic shared by the register, order
// placement and settlement: tax, discounts, totals and change.
//
// All amounts are decimals in the restaurant's currency. Tax and percentage
// discounts are rounded to whole currency units, half away from zero.
package pricing

import (
	"errors"

	"github.com/saffron-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidDiscountType = errors.New("invalid discount_type")
	ErrNegativeDiscount    = errors.New("discount value must be >= 0")
	ErrInvalidPercentage   = errors.New("percentage discount must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Quote is the priced breakdown of a cart or order.
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// NewQuote prices a subtotal at the given tax rate with an already computed
// discount amount. The discount never exceeds subtotal+tax, so Total is never
// negative.
func NewQuote(subtotal, taxRate, discount decimal.Decimal) Quote {
	tax := ComputeTax(subtotal, taxRate)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if payable := subtotal.Add(tax); discount.GreaterThan(payable) {
		discount = payable
	}
	return Quote{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    ComputeTotal(subtotal, tax, discount),
	}
}

// ComputeTax returns subtotal × rate rounded to whole units.
func ComputeTax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(0)
}

// ComputeDiscount returns the discount amount for a subtotal.
// PERCENTAGE: round(subtotal × value / 100). FIXED_AMOUNT: value, clamped to
// the subtotal.
func ComputeDiscount(subtotal decimal.Decimal, discountType string, value decimal.Decimal) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, ErrNegativeDiscount
	}
	switch discountType {
	case enum.DiscountTypePercentage:
		if value.GreaterThan(hundred) {
			return decimal.Zero, ErrInvalidPercentage
		}
		return subtotal.Mul(value).Div(hundred).Round(0), nil
	case enum.DiscountTypeFixed:
		if value.GreaterThan(subtotal) {
			return subtotal, nil
		}
		return value, nil
	}
	return decimal.Zero, ErrInvalidDiscountType
}

// ComputeTotal returns subtotal + tax − discount, floored at zero.
func ComputeTotal(subtotal, tax, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// ComputeChange returns max(0, tendered − total).
func ComputeChange(tendered, total decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// CanSettle reports whether a payment of the given method may finalize total.
// Card and mobile payments always settle; cash needs tendered >= total.
func CanSettle(method string, tendered, total decimal.Decimal) bool {
	switch method {
	case enum.PaymentMethodCard, enum.PaymentMethodMobile:
		return true
	case enum.PaymentMethodCash:
		return tendered.GreaterThanOrEqual(total)
	}
	return false
}

// IsValidMethod reports whether method is a known payment method.
func IsValidMethod(method string) bool {
	switch method {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodMobile:
		return true
	}
	return false
}

// IsValidDiscountType reports whether s is a known discount type.
func IsValidDiscountType(s string) bool {
	switch s {
	case enum.DiscountTypePercentage, enum.DiscountTypeFixed:
		return true
	}
	return false
}
