package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for cart validation.
var (
	ErrOutOfStock        = errors.New("product out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidCustomer   = errors.New("customer id required")
	ErrLineNotFound      = errors.New("cart line not found")
)

// OutOfStockError indicates a product with no available stock was added.
type OutOfStockError struct {
	ProductID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock", e.ProductID)
}

// Is reports ErrOutOfStock as the matching sentinel.
func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// InsufficientStockError indicates a quantity above the stock observed when
// the line was created.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Is reports ErrInsufficientStock as the matching sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
