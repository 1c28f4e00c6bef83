// Package promo resolves promotion codes against an order subtotal.
//
// Codes match case-insensitively. A promo applies only once the subtotal
// reaches its minimum, and its discount never exceeds the subtotal.
package promo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a code matches no promotion.
var ErrNotFound = errors.New("promo code not found")

// BelowMinimumError is returned when the subtotal does not reach the
// promotion's minimum order value.
type BelowMinimumError struct {
	Code    string
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("promo %s requires a minimum order of %s", e.Code, e.Minimum.StringFixed(2))
}

// Promo is a discount code. Codes are stored upper-case.
type Promo struct {
	Code             string          `json:"code"`
	Kind             string          `json:"kind"`
	Value            decimal.Decimal `json:"value"`
	MinOrderSubtotal decimal.Decimal `json:"min_order_subtotal"`
	Description      string          `json:"description"`
}

// Applied is a validated promo with the discount it yields for a subtotal.
type Applied struct {
	Promo  Promo           `json:"promo"`
	Amount decimal.Decimal `json:"amount"`
}

// DefaultPromos is the fixed set of promotions offered at the register.
var DefaultPromos = []Promo{
	{
		Code:             "WELCOME20",
		Kind:             enum.DiscountTypePercentage,
		Value:            decimal.NewFromInt(20),
		MinOrderSubtotal: decimal.NewFromInt(500),
		Description:      "20% off orders of 500 or more",
	},
	{
		Code:             "FLAT100",
		Kind:             enum.DiscountTypeFixed,
		Value:            decimal.NewFromInt(100),
		MinOrderSubtotal: decimal.NewFromInt(800),
		Description:      "100 off orders of 800 or more",
	},
	{
		Code:             "FEAST15",
		Kind:             enum.DiscountTypePercentage,
		Value:            decimal.NewFromInt(15),
		MinOrderSubtotal: decimal.NewFromInt(1500),
		Description:      "15% off orders of 1500 or more",
	},
	{
		Code:             "TEAM50",
		Kind:             enum.DiscountTypeFixed,
		Value:            decimal.NewFromInt(50),
		MinOrderSubtotal: decimal.Zero,
		Description:      "50 off any order",
	},
}

// Resolver looks up promo codes in a static table.
type Resolver struct {
	promos map[string]Promo
}

// NewResolver builds a resolver over promos. Later duplicates win.
func NewResolver(promos []Promo) *Resolver {
	m := make(map[string]Promo, len(promos))
	for _, p := range promos {
		p.Code = Normalize(p.Code)
		m[p.Code] = p
	}
	return &Resolver{promos: m}
}

// Normalize trims and upper-cases a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate resolves code against subtotal. It returns ErrNotFound or a
// *BelowMinimumError when the promotion cannot be applied.
func (r *Resolver) Validate(code string, subtotal decimal.Decimal) (Applied, error) {
	p, ok := r.promos[Normalize(code)]
	if !ok {
		return Applied{}, ErrNotFound
	}
	if subtotal.LessThan(p.MinOrderSubtotal) {
		return Applied{}, &BelowMinimumError{Code: p.Code, Minimum: p.MinOrderSubtotal}
	}
	amount, err := ComputeDiscount(subtotal, p.Kind, p.Value)
	if err != nil {
		return Applied{}, fmt.Errorf("promo %s: %w", p.Code, err)
	}
	return Applied{Promo: p, Amount: amount}, nil
}

// List returns all promotions sorted by code.
func (r *Resolver) List() []Promo {
	out := make([]Promo, 0, len(r.promos))
	for _, p := range r.promos {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ComputeDiscount is pricing.ComputeDiscount, re-exported for callers that
// only deal with promotions.
func ComputeDiscount(subtotal decimal.Decimal, discountType string, value decimal.Decimal) (decimal.Decimal, error) {
	return pricing.ComputeDiscount(subtotal, discountType, value)
}
