// Package cart implements the working order a cashier builds at the till:
// one line per product, quantities bounded by the stock seen when the line
// was created, and a customer to bill.
//
// Cart is a value. Every mutation returns a new Cart and leaves the receiver
// untouched, so a rejected operation never changes what the caller holds.
package cart

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// Line is a single product entry in the cart. Name and price are copied from
// the catalog when the line is created.
type Line struct {
	ID           string
	ProductID    string
	ProductName  string
	UnitPrice    decimal.Decimal
	Quantity     int
	StockCeiling int
}

// Subtotal returns UnitPrice × Quantity at full precision.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the order being assembled. The zero value is an empty cart with no
// customer.
type Cart struct {
	lines      []Line
	customerID string
}

// Lines returns a copy of the cart lines in insertion order.
func (c Cart) Lines() []Line {
	return slices.Clone(c.lines)
}

// Line returns the line with the given id.
func (c Cart) Line(lineID string) (Line, bool) {
	i := c.indexOf(lineID)
	if i < 0 {
		return Line{}, false
	}
	return c.lines[i], true
}

// LineForProduct returns the line holding productID.
func (c Cart) LineForProduct(productID string) (Line, bool) {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return Line{}, false
}

// CustomerID returns the customer the sale will be billed to, or "".
func (c Cart) CustomerID() string {
	return c.customerID
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// ItemCount returns the total number of units across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Total returns the sum of line subtotals. It is recomputed on every call and
// never rounded.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// withNewLine returns a cart with a fresh line for p at quantity 1.
// The caller guarantees p has stock and is not already in the cart.
func (c Cart) withNewLine(lineID string, p catalog.Product) Cart {
	next := c.clone()
	next.lines = append(next.lines, Line{
		ID:           lineID,
		ProductID:    p.ID,
		ProductName:  p.Name,
		UnitPrice:    p.Price,
		Quantity:     1,
		StockCeiling: p.Stock,
	})
	return next
}

// SetQuantity returns a cart where the line has quantity n. A quantity of
// zero or less removes the line; a quantity above the line's stock ceiling
// is rejected.
func (c Cart) SetQuantity(lineID string, n int) (Cart, error) {
	i := c.indexOf(lineID)
	if i < 0 {
		return c, ErrLineNotFound
	}

	next := c.clone()
	if n <= 0 {
		next.lines = slices.Delete(next.lines, i, i+1)
		return next, nil
	}

	line := next.lines[i]
	if n > line.StockCeiling {
		return c, &InsufficientStockError{
			ProductID: line.ProductID,
			Requested: n,
			Available: line.StockCeiling,
		}
	}
	next.lines[i].Quantity = n
	return next, nil
}

// WithCustomer returns a cart billed to customerID, trimmed of surrounding
// whitespace. Blank ids are rejected.
func (c Cart) WithCustomer(customerID string) (Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return c, ErrInvalidCustomer
	}
	next := c.clone()
	next.customerID = customerID
	return next, nil
}

func (c Cart) indexOf(lineID string) int {
	return slices.IndexFunc(c.lines, func(l Line) bool { return l.ID == lineID })
}

func (c Cart) clone() Cart {
	return Cart{
		lines:      slices.Clone(c.lines),
		customerID: c.customerID,
	}
}
