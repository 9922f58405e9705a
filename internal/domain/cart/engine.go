package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// Engine owns the working Cart of one checkout session together with the
// generator for its line ids. An operation that fails leaves the cart as it
// was. Engine is not safe for concurrent use.
type Engine struct {
	cart Cart
	ids  IDGenerator
}

// NewEngine returns an Engine with an empty cart. A nil generator defaults to
// a fresh Sequence.
func NewEngine(ids IDGenerator) *Engine {
	if ids == nil {
		ids = &Sequence{}
	}
	return &Engine{ids: ids}
}

// Cart returns the current cart value.
func (e *Engine) Cart() Cart {
	return e.cart
}

// AddProduct adds one unit of p. A product already in the cart has its line
// incremented, bounded by that line's stock ceiling; otherwise a new line is
// created with the stock observed now as its ceiling.
func (e *Engine) AddProduct(p catalog.Product) (Line, error) {
	if p.Stock <= 0 {
		return Line{}, &OutOfStockError{ProductID: p.ID}
	}

	if existing, ok := e.cart.LineForProduct(p.ID); ok {
		if err := e.IncrementQuantity(existing.ID); err != nil {
			return existing, err
		}
		line, _ := e.cart.Line(existing.ID)
		return line, nil
	}

	next := e.cart.withNewLine(e.ids.NextID(), p)
	e.cart = next
	line, _ := next.LineForProduct(p.ID)
	return line, nil
}

// SetQuantity sets the quantity of a line. Zero or less removes the line.
func (e *Engine) SetQuantity(lineID string, n int) error {
	next, err := e.cart.SetQuantity(lineID, n)
	if err != nil {
		return err
	}
	e.cart = next
	return nil
}

// IncrementQuantity adds one unit to a line, up to its stock ceiling.
func (e *Engine) IncrementQuantity(lineID string) error {
	line, ok := e.cart.Line(lineID)
	if !ok {
		return ErrLineNotFound
	}
	return e.SetQuantity(lineID, line.Quantity+1)
}

// DecrementQuantity removes one unit from a line; the last unit removes the
// line.
func (e *Engine) DecrementQuantity(lineID string) error {
	line, ok := e.cart.Line(lineID)
	if !ok {
		return ErrLineNotFound
	}
	return e.SetQuantity(lineID, line.Quantity-1)
}

// Total returns the cart total at full precision.
func (e *Engine) Total() decimal.Decimal {
	return e.cart.Total()
}

// SetCustomer sets the customer to bill. Blank ids are rejected and the
// previous customer is kept.
func (e *Engine) SetCustomer(customerID string) error {
	next, err := e.cart.WithCustomer(customerID)
	if err != nil {
		return err
	}
	e.cart = next
	return nil
}

// Reset empties the cart and clears the customer. The id generator is kept
// so line ids never repeat within a session.
func (e *Engine) Reset() {
	e.cart = Cart{}
}
