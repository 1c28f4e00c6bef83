// Package cart accumulates menu items selected at the register.
//
// A cart holds at most one line per menu item; adding the same item again
// bumps the quantity. Lines with a quantity of zero or less are removed, so a
// stored line always has 1 <= Quantity <= MaxQuantity.
package cart

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line may hold.
const MaxQuantity = 999

var (
	ErrLineNotFound     = errors.New("cart line not found")
	ErrItemUnavailable  = errors.New("menu item is not available")
	ErrInvalidPrice     = errors.New("menu item price must be >= 0")
	ErrInvalidItem      = errors.New("menu item id is required")
	ErrQuantityTooLarge = fmt.Errorf("quantity must be <= %d", MaxQuantity)
)

// MenuItem is the catalog snapshot a line is built from.
type MenuItem struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Category  string          `json:"category"`
	Available bool            `json:"available"`
}

// Line is a single menu item with its quantity and free-text notes.
type Line struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int32           `json:"quantity"`
	Notes      string          `json:"notes"`
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

// Cart is an ordered list of lines. The zero value is an empty cart.
type Cart struct {
	Lines []Line `json:"lines"`
}

// AddItem increments the line for item, or appends a new line with quantity 1.
func (c *Cart) AddItem(item MenuItem) (Line, error) {
	if item.ID == uuid.Nil {
		return Line{}, ErrInvalidItem
	}
	if !item.Available {
		return Line{}, ErrItemUnavailable
	}
	if item.UnitPrice.IsNegative() {
		return Line{}, ErrInvalidPrice
	}
	for i := range c.Lines {
		if c.Lines[i].MenuItemID == item.ID {
			if c.Lines[i].Quantity >= MaxQuantity {
				return Line{}, ErrQuantityTooLarge
			}
			c.Lines[i].Quantity++
			return c.Lines[i], nil
		}
	}
	line := Line{
		ID:         uuid.New(),
		MenuItemID: item.ID,
		Name:       item.Name,
		UnitPrice:  item.UnitPrice,
		Quantity:   1,
	}
	c.Lines = append(c.Lines, line)
	return line, nil
}

// SetQuantity sets the quantity of a line directly; qty <= 0 removes it.
// A qty above MaxQuantity leaves the line unchanged.
func (c *Cart) SetQuantity(lineID uuid.UUID, qty int32) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	return c.setAt(i, int64(qty))
}

// UpdateQuantity adds delta to a line's quantity, removing it at <= 0.
func (c *Cart) UpdateQuantity(lineID uuid.UUID, delta int32) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	// Summed in int64 so a large delta cannot wrap.
	return c.setAt(i, int64(c.Lines[i].Quantity)+int64(delta))
}

func (c *Cart) setAt(i int, qty int64) error {
	if qty > MaxQuantity {
		return ErrQuantityTooLarge
	}
	if qty <= 0 {
		c.removeAt(i)
		return nil
	}
	c.Lines[i].Quantity = int32(qty)
	return nil
}

// SetNotes replaces the notes of a line.
func (c *Cart) SetNotes(lineID uuid.UUID, notes string) error {
	i := c.indexOf(lineID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines[i].Notes = notes
	return nil
}

// RemoveLine deletes a line. Unknown ids are ignored.
func (c *Cart) RemoveLine(lineID uuid.UUID) {
	if i := c.indexOf(lineID); i >= 0 {
		c.removeAt(i)
	}
}

// Line returns the line with the given id.
func (c *Cart) Line(lineID uuid.UUID) (Line, bool) {
	i := c.indexOf(lineID)
	if i < 0 {
		return Line{}, false
	}
	return c.Lines[i], true
}

// Subtotal returns Σ unit price × quantity over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// ItemCount returns the total quantity across lines.
func (c *Cart) ItemCount() int32 {
	var n int32
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Clear drops every line.
func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) indexOf(lineID uuid.UUID) int {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
}
