package catalog

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// LowStockThreshold is the stock count at or below which a product is
// flagged as running low.
const LowStockThreshold = 5

// StockLevel classifies a product's available stock for display.
type StockLevel string

const (
	// StockOut means nothing can be sold.
	StockOut StockLevel = "out"
	// StockLow means LowStockThreshold units or fewer remain.
	StockLow StockLevel = "low"
	// StockOK means stock is above the low threshold.
	StockOK StockLevel = "ok"
)

// Product is a catalog item as reported by the commerce service at fetch time.
// Stock is authoritative only for the snapshot it belongs to.
type Product struct {
	ID       string
	Name     string
	Barcode  string
	Price    decimal.Decimal
	Category string
	Stock    int

	// Extra holds wire fields the till does not interpret, keyed by field
	// name, so they can be passed through for display.
	Extra map[string]jx.Raw
}

// StockLevel reports the display classification of the product's stock.
func (p Product) StockLevel() StockLevel {
	switch {
	case p.Stock <= 0:
		return StockOut
	case p.Stock <= LowStockThreshold:
		return StockLow
	default:
		return StockOK
	}
}

// Source fetches the full product catalog from the commerce service.
type Source interface {
	FetchCatalog(ctx context.Context) ([]Product, error)
}
