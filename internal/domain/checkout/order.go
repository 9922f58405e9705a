package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// SaleItem is one product and quantity in a submitted sale.
type SaleItem struct {
	ProductID string
	Quantity  int
}

// SaleOrder is the payload submitted to the commerce service. It has exactly
// one item per product in the cart.
type SaleOrder struct {
	CustomerID string
	Items      []SaleItem
}

// NewSaleOrder builds the submission payload from a cart.
func NewSaleOrder(c cart.Cart) SaleOrder {
	lines := c.Lines()
	items := make([]SaleItem, len(lines))
	for i, l := range lines {
		items[i] = SaleItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return SaleOrder{CustomerID: c.CustomerID(), Items: items}
}

// Receipt is the commerce service's acknowledgment of a sale. The till does
// not interpret it beyond reporting success.
type Receipt struct {
	InvoiceID string
	IssuedAt  time.Time
	Raw       []byte
}

// SaleResult describes a completed sale.
type SaleResult struct {
	Order     SaleOrder
	Receipt   Receipt
	Total     decimal.Decimal
	Tendered  decimal.Decimal
	ChangeDue decimal.Decimal
}

// Submitter sends a finalized sale to the commerce service.
type Submitter interface {
	SubmitSale(ctx context.Context, order SaleOrder) (*Receipt, error)
}

// Refresher reloads the catalog after stock changed server-side.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}
