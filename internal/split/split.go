// Package split divides an order total between several payers. Every
// allocation sums exactly to the order total and each share can be settled
// independently.
package split

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/shopspring/decimal"
)

// MaxPayers bounds how many ways a bill can be split.
const MaxPayers = 20

var (
	ErrInvalidCount    = errors.New("split count must be between 2 and 20")
	ErrNothingToSplit  = errors.New("order total must be greater than zero to split")
	ErrNonPositive     = errors.New("split amounts must be greater than zero")
	ErrTooSmallToSplit = errors.New("order total is too small to give every payer at least 0.01")
	ErrUnassignedLine  = errors.New("every order line must be assigned to a payer")
	ErrUnknownLine     = errors.New("assignment references an unknown order line")
	ErrInvalidPayer    = errors.New("payer index out of range")
	ErrEmptyShare      = errors.New("every payer must be assigned at least one line")
	ErrSubtotalMissing = errors.New("order lines do not add up to the order subtotal")
)

// MismatchError is returned by ByAmount when the requested amounts do not
// add up to the order total.
type MismatchError struct {
	Total decimal.Decimal
	Sum   decimal.Decimal
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("split amounts sum to %s but order total is %s", e.Sum.StringFixed(2), e.Total.StringFixed(2))
}

// Share is one payer's portion of the bill. Subtotal, Tax and Discount are
// only populated for item splits.
type Share struct {
	Index    int             `json:"index"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Amount   decimal.Decimal `json:"amount"`
	LineIDs  []uuid.UUID     `json:"line_ids,omitempty"`
}

// ItemLine is an order line as seen by the item allocator.
type ItemLine struct {
	ID     uuid.UUID
	Amount decimal.Decimal
}

// Sum adds up share amounts.
func Sum(shares []Share) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s.Amount)
	}
	return total
}

// ByCount splits total into n equal shares at cent precision. Leftover cents
// go to the first payers, one each. Every share is at least one cent.
func ByCount(total decimal.Decimal, n int) ([]Share, error) {
	if n < 2 || n > MaxPayers {
		return nil, ErrInvalidCount
	}
	if !total.IsPositive() {
		return nil, ErrNothingToSplit
	}
	cents := total.Round(2).Shift(2).IntPart()
	if cents < int64(n) {
		return nil, ErrTooSmallToSplit
	}
	base := cents / int64(n)
	rem := cents % int64(n)

	shares := make([]Share, n)
	for i := range shares {
		c := base
		if int64(i) < rem {
			c++
		}
		shares[i] = Share{Index: i, Amount: decimal.New(c, -2)}
	}
	return shares, nil
}

// ByAmount turns explicit per-payer amounts into shares. The amounts must all
// be positive and add up to total exactly.
func ByAmount(total decimal.Decimal, amounts []decimal.Decimal) ([]Share, error) {
	if len(amounts) < 2 || len(amounts) > MaxPayers {
		return nil, ErrInvalidCount
	}
	if !total.IsPositive() {
		return nil, ErrNothingToSplit
	}
	shares := make([]Share, len(amounts))
	sum := decimal.Zero
	for i, a := range amounts {
		if !a.IsPositive() {
			return nil, ErrNonPositive
		}
		sum = sum.Add(a)
		shares[i] = Share{Index: i, Amount: a}
	}
	if !sum.Equal(total) {
		return nil, &MismatchError{Total: total, Sum: sum}
	}
	return shares, nil
}

// ByItems assigns each order line to a payer. Tax and discount are shared in
// proportion to each payer's subtotal, rounded to cents; the last payer takes
// whatever remains so the shares add up to q.Total exactly.
func ByItems(lines []ItemLine, assignment map[uuid.UUID]int, payers int, q pricing.Quote) ([]Share, error) {
	if payers < 2 || payers > MaxPayers {
		return nil, ErrInvalidCount
	}
	if !q.Total.IsPositive() {
		return nil, ErrNothingToSplit
	}

	known := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		known[l.ID] = true
	}
	for id := range assignment {
		if !known[id] {
			return nil, ErrUnknownLine
		}
	}

	shares := make([]Share, payers)
	for i := range shares {
		shares[i] = Share{Index: i, Subtotal: decimal.Zero}
	}
	subtotal := decimal.Zero
	for _, l := range lines {
		p, ok := assignment[l.ID]
		if !ok {
			return nil, ErrUnassignedLine
		}
		if p < 0 || p >= payers {
			return nil, ErrInvalidPayer
		}
		shares[p].Subtotal = shares[p].Subtotal.Add(l.Amount)
		shares[p].LineIDs = append(shares[p].LineIDs, l.ID)
		subtotal = subtotal.Add(l.Amount)
	}
	if !subtotal.Equal(q.Subtotal) {
		return nil, ErrSubtotalMissing
	}
	for _, s := range shares {
		if len(s.LineIDs) == 0 {
			return nil, ErrEmptyShare
		}
	}

	taxLeft, discLeft, totalLeft := q.Tax, q.Discount, q.Total
	last := payers - 1
	for i := 0; i < last; i++ {
		ratio := shares[i].Subtotal.Div(q.Subtotal)
		shares[i].Tax = q.Tax.Mul(ratio).Round(2)
		shares[i].Discount = q.Discount.Mul(ratio).Round(2)
		shares[i].Amount = shares[i].Subtotal.Add(shares[i].Tax).Sub(shares[i].Discount)

		taxLeft = taxLeft.Sub(shares[i].Tax)
		discLeft = discLeft.Sub(shares[i].Discount)
		totalLeft = totalLeft.Sub(shares[i].Amount)
	}
	shares[last].Tax = taxLeft
	shares[last].Discount = discLeft
	shares[last].Amount = totalLeft

	for _, s := range shares {
		if s.Amount.IsNegative() {
			return nil, ErrNonPositive
		}
	}
	return shares, nil
}
