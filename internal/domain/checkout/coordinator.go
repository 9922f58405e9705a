// Package checkout drives the payment step of a till session: it gates
// payment on cart readiness, tracks the amount tendered, and submits the
// finished sale to the commerce service exactly once per confirmation.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
	"github.com/xenking/minimercado-till/internal/money"
)

// PostSaleRefreshTimeout bounds the catalog reload that follows an accepted
// sale. The reload runs after ConfirmSale has returned.
const PostSaleRefreshTimeout = 30 * time.Second

// View is a consistent snapshot of a session's cart and payment state.
type View struct {
	Cart      cart.Cart
	Total     decimal.Decimal
	Payment   PaymentState
	ChangeDue decimal.Decimal
}

// Coordinator owns one session's cart engine and payment state. All methods
// are safe for concurrent use. The remote submission runs without holding the
// lock; the Submitting status rejects every other command meanwhile. Once
// closed, every command fails with ErrClosed.
type Coordinator struct {
	mu      sync.Mutex
	engine  *cart.Engine
	payment PaymentState
	closed  bool

	sales   Submitter
	catalog Refresher
}

// NewCoordinator creates a Coordinator in the Idle state. refresher may be
// nil, in which case no catalog reload follows a sale.
func NewCoordinator(engine *cart.Engine, sales Submitter, refresher Refresher) *Coordinator {
	if engine == nil {
		engine = cart.NewEngine(nil)
	}
	return &Coordinator{
		engine:  engine,
		payment: idlePayment(),
		sales:   sales,
		catalog: refresher,
	}
}

// View returns the current cart and payment state.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.viewLocked()
}

// Payment returns the current payment state.
func (c *Coordinator) Payment() PaymentState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.payment
}

// Close retires the coordinator. It fails with ErrAlreadySubmitting while a
// submission is in flight; afterwards every command returns ErrClosed.
// Closing twice is a no-op.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.payment.Status == StatusSubmitting {
		return ErrAlreadySubmitting
	}
	c.closed = true
	return nil
}

// checkLocked rejects commands on a closed or submitting coordinator.
func (c *Coordinator) checkLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.payment.Status == StatusSubmitting {
		return ErrAlreadySubmitting
	}
	return nil
}

func (c *Coordinator) viewLocked() View {
	total := c.engine.Total()
	v := View{
		Cart:    c.engine.Cart(),
		Total:   total,
		Payment: c.payment,
	}
	if c.payment.Status == StatusAwaitingAmount {
		v.ChangeDue = c.payment.ChangeDue(total)
	}
	return v
}

// AddProduct adds one unit of p to the cart.
func (c *Coordinator) AddProduct(p catalog.Product) (cart.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return cart.Line{}, err
	}
	return c.engine.AddProduct(p)
}

// SetQuantity sets a line's quantity; zero or less removes it.
func (c *Coordinator) SetQuantity(lineID string, n int) error {
	return c.mutateCart(func(e *cart.Engine) error {
		return e.SetQuantity(lineID, n)
	})
}

// IncrementQuantity adds one unit to a line.
func (c *Coordinator) IncrementQuantity(lineID string) error {
	return c.mutateCart(func(e *cart.Engine) error {
		return e.IncrementQuantity(lineID)
	})
}

// DecrementQuantity removes one unit from a line.
func (c *Coordinator) DecrementQuantity(lineID string) error {
	return c.mutateCart(func(e *cart.Engine) error {
		return e.DecrementQuantity(lineID)
	})
}

func (c *Coordinator) mutateCart(fn func(e *cart.Engine) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return err
	}
	if err := fn(c.engine); err != nil {
		return err
	}
	if c.engine.Cart().IsEmpty() {
		c.payment = idlePayment()
	}
	return nil
}

// SetCustomer sets the customer to bill. Changing the customer cancels an
// open payment step.
func (c *Coordinator) SetCustomer(customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return err
	}
	prev := c.engine.Cart().CustomerID()
	if err := c.engine.SetCustomer(customerID); err != nil {
		return err
	}
	if c.engine.Cart().CustomerID() != prev {
		c.payment = idlePayment()
	}
	return nil
}

// BeginPayment opens the payment step with the amount tendered seeded to the
// cart total. Calling it while the step is already open keeps the amount
// entered so far.
func (c *Coordinator) BeginPayment() (PaymentState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return c.payment, err
	}
	if c.payment.Status == StatusAwaitingAmount {
		return c.payment, nil
	}

	current := c.engine.Cart()
	if current.IsEmpty() || current.CustomerID() == "" {
		return c.payment, &CartNotReadyError{
			EmptyCart:       current.IsEmpty(),
			MissingCustomer: current.CustomerID() == "",
		}
	}

	c.payment = PaymentState{
		Status:         StatusAwaitingAmount,
		AmountTendered: current.Total(),
	}
	return c.payment, nil
}

// SetAmountTendered replaces the amount tendered. Amounts below the total are
// accepted here and rejected at confirmation.
func (c *Coordinator) SetAmountTendered(amount decimal.Decimal) (PaymentState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return c.payment, err
	}
	if c.payment.Status == StatusIdle {
		return c.payment, ErrPaymentNotStarted
	}
	if amount.IsNegative() {
		return c.payment, ErrInvalidAmount
	}

	c.payment.AmountTendered = amount
	return c.payment, nil
}

// CancelPayment closes the payment step and keeps the cart.
func (c *Coordinator) CancelPayment() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return err
	}
	if c.payment.Status == StatusIdle {
		return ErrPaymentNotStarted
	}

	c.payment = idlePayment()
	return nil
}

// ConfirmSale submits the cart as a sale. Exactly one submission is made per
// accepted call. On success the cart is cleared, the payment step closes, and
// a catalog reload starts in the background. On failure the cart and amount
// are kept so the cashier can retry.
func (c *Coordinator) ConfirmSale(ctx context.Context) (*SaleResult, error) {
	order, result, err := c.startSubmission()
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("customer_id", order.CustomerID),
		zap.Int("items", len(order.Items)),
		zap.String("total", money.Format(result.Total)),
	)

	receipt, err := c.submit(ctx, order)
	if err != nil {
		lg.Warn("Sale submission failed", zap.Error(err))
		return nil, newSubmissionError(err)
	}
	if receipt != nil {
		result.Receipt = *receipt
	}
	lg.Info("Sale submitted", zap.String("invoice_id", result.Receipt.InvoiceID))

	if c.catalog != nil {
		go c.refreshCatalog(context.WithoutCancel(ctx), lg)
	}

	return result, nil
}

// refreshCatalog reloads stock after a sale without holding up the reply.
func (c *Coordinator) refreshCatalog(ctx context.Context, lg *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, PostSaleRefreshTimeout)
	defer cancel()

	if _, err := c.catalog.Refresh(ctx); err != nil {
		lg.Warn("Catalog refresh after sale failed", zap.Error(err))
	}
}

// startSubmission validates the payment and moves to Submitting.
func (c *Coordinator) startSubmission() (SaleOrder, *SaleResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLocked(); err != nil {
		return SaleOrder{}, nil, err
	}
	if c.payment.Status == StatusIdle {
		return SaleOrder{}, nil, ErrPaymentNotStarted
	}

	current := c.engine.Cart()
	total := current.Total()
	if c.payment.AmountTendered.LessThan(total) {
		return SaleOrder{}, nil, &InsufficientPaymentError{
			Tendered: c.payment.AmountTendered,
			Total:    total,
		}
	}

	order := NewSaleOrder(current)
	result := &SaleResult{
		Order:     order,
		Total:     total,
		Tendered:  c.payment.AmountTendered,
		ChangeDue: c.payment.ChangeDue(total),
	}
	c.payment.Status = StatusSubmitting
	return order, result, nil
}

// submit calls the submitter and always leaves the Submitting status, even if
// the submitter panics.
func (c *Coordinator) submit(ctx context.Context, order SaleOrder) (receipt *Receipt, err error) {
	accepted := false
	defer func() {
		c.finishSubmission(accepted)
	}()

	if c.sales == nil {
		return nil, errors.New("no sale submitter configured")
	}
	receipt, err = c.sales.SubmitSale(ctx, order)
	accepted = err == nil
	return receipt, err
}

func (c *Coordinator) finishSubmission(accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if accepted {
		c.engine.Reset()
		c.payment = idlePayment()
		return
	}
	c.payment.Status = StatusAwaitingAmount
}
