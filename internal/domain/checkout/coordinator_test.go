package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// --- Mock implementations ---

type mockSubmitter struct {
	mu      sync.Mutex
	orders  []SaleOrder
	calls   atomic.Int32
	receipt *Receipt
	err     error
	panicV  any

	// started is closed on the first call when non-nil; release blocks the
	// call until closed.
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *mockSubmitter) SubmitSale(ctx context.Context, order SaleOrder) (*Receipt, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()

	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panicV != nil {
		panic(m.panicV)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.receipt != nil {
		return m.receipt, nil
	}
	return &Receipt{InvoiceID: "F-1"}, nil
}

func (m *mockSubmitter) lastOrder() SaleOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[len(m.orders)-1]
}

type mockRefresher struct {
	calls atomic.Int32
	err   error

	// release blocks the refresh until closed when non-nil; deadline records
	// whether the refresh context was bounded.
	release  chan struct{}
	deadline atomic.Bool
	done     atomic.Bool
}

func (m *mockRefresher) Refresh(ctx context.Context) (*catalog.Snapshot, error) {
	_, ok := ctx.Deadline()
	m.deadline.Store(ok)
	m.calls.Add(1)
	defer m.done.Store(true)
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return catalog.NewSnapshot(nil, time.Now()), nil
}

type detailErr struct{ detail string }

func (e *detailErr) Error() string        { return "remote: " + e.detail }
func (e *detailErr) RemoteDetail() string { return e.detail }

// --- Helpers ---

func product(id, price string, stock int) catalog.Product {
	return catalog.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// readyCoordinator returns a coordinator whose cart holds two units of P1 at
// 2.50 billed to C1.
func readyCoordinator(t *testing.T, sub Submitter, ref Refresher) *Coordinator {
	t.Helper()
	c := NewCoordinator(cart.NewEngine(nil), sub, ref)
	p := product("P1", "2.50", 5)
	_, err := c.AddProduct(p)
	require.NoError(t, err)
	_, err = c.AddProduct(p)
	require.NoError(t, err)
	require.NoError(t, c.SetCustomer("C1"))
	return c
}

// --- Tests ---

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "awaiting_amount", StatusAwaitingAmount.String())
	assert.Equal(t, "submitting", StatusSubmitting.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestBeginPayment_SeedsTenderedWithTotal(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)

	state, err := c.BeginPayment()
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAmount, state.Status)
	assert.True(t, state.AmountTendered.Equal(dec("5.00")))
	assert.True(t, c.View().ChangeDue.IsZero())
}

func TestBeginPayment_EmptyCart(t *testing.T) {
	c := NewCoordinator(nil, &mockSubmitter{}, nil)
	require.NoError(t, c.SetCustomer("C1"))

	_, err := c.BeginPayment()
	require.ErrorIs(t, err, ErrCartNotReady)

	var notReady *CartNotReadyError
	require.True(t, errors.As(err, &notReady))
	assert.True(t, notReady.EmptyCart)
	assert.False(t, notReady.MissingCustomer)
	assert.Equal(t, StatusIdle, c.Payment().Status)
}

func TestBeginPayment_MissingCustomer(t *testing.T) {
	c := NewCoordinator(nil, &mockSubmitter{}, nil)
	_, err := c.AddProduct(product("P1", "1.00", 3))
	require.NoError(t, err)

	_, err = c.BeginPayment()
	var notReady *CartNotReadyError
	require.True(t, errors.As(err, &notReady))
	assert.False(t, notReady.EmptyCart)
	assert.True(t, notReady.MissingCustomer)
}

func TestBeginPayment_ReportsBothReasons(t *testing.T) {
	c := NewCoordinator(nil, &mockSubmitter{}, nil)

	_, err := c.BeginPayment()
	var notReady *CartNotReadyError
	require.True(t, errors.As(err, &notReady))
	assert.True(t, notReady.EmptyCart)
	assert.True(t, notReady.MissingCustomer)
	assert.Contains(t, err.Error(), "cart is empty")
	assert.Contains(t, err.Error(), "customer id not set")
}

func TestBeginPayment_AgainKeepsAmount(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)
	_, err = c.SetAmountTendered(dec("20"))
	require.NoError(t, err)

	state, err := c.BeginPayment()
	require.NoError(t, err)
	assert.True(t, state.AmountTendered.Equal(dec("20")))
}

func TestSetAmountTendered(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)

	_, err := c.SetAmountTendered(dec("10"))
	require.ErrorIs(t, err, ErrPaymentNotStarted)

	_, err = c.BeginPayment()
	require.NoError(t, err)

	state, err := c.SetAmountTendered(dec("20.00"))
	require.NoError(t, err)
	assert.True(t, state.AmountTendered.Equal(dec("20")))
	assert.True(t, c.View().ChangeDue.Equal(dec("15.00")))

	// Below the total is accepted; change due goes negative.
	_, err = c.SetAmountTendered(dec("4.00"))
	require.NoError(t, err)
	assert.True(t, c.View().ChangeDue.Equal(dec("-1.00")))

	_, err = c.SetAmountTendered(dec("-1"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, c.Payment().AmountTendered.Equal(dec("4.00")))
}

func TestChangeDue_OnlyWhileAwaitingAmount(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	assert.True(t, c.View().ChangeDue.IsZero())

	_, err := c.BeginPayment()
	require.NoError(t, err)
	_, err = c.SetAmountTendered(dec("7.25"))
	require.NoError(t, err)
	assert.True(t, c.View().ChangeDue.Equal(dec("2.25")))
}

func TestCancelPayment_KeepsCart(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	require.ErrorIs(t, c.CancelPayment(), ErrPaymentNotStarted)

	_, err := c.BeginPayment()
	require.NoError(t, err)
	require.NoError(t, c.CancelPayment())

	v := c.View()
	assert.Equal(t, StatusIdle, v.Payment.Status)
	assert.True(t, v.Payment.AmountTendered.IsZero())
	assert.Equal(t, 2, v.Cart.ItemCount())
	assert.Equal(t, "C1", v.Cart.CustomerID())
}

func TestPaymentResets_WhenCartEmpties(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	line, ok := c.View().Cart.LineForProduct("P1")
	require.True(t, ok)
	require.NoError(t, c.SetQuantity(line.ID, 0))

	assert.Equal(t, StatusIdle, c.Payment().Status)
}

func TestPaymentKept_WhenCartChangesButStaysNonEmpty(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	line, _ := c.View().Cart.LineForProduct("P1")
	require.NoError(t, c.DecrementQuantity(line.ID))

	assert.Equal(t, StatusAwaitingAmount, c.Payment().Status)
}

func TestPaymentResets_WhenCustomerChanges(t *testing.T) {
	c := readyCoordinator(t, &mockSubmitter{}, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	require.NoError(t, c.SetCustomer("C1"))
	assert.Equal(t, StatusAwaitingAmount, c.Payment().Status, "same customer keeps payment open")

	require.NoError(t, c.SetCustomer("C2"))
	assert.Equal(t, StatusIdle, c.Payment().Status)
}

func TestConfirmSale_Success(t *testing.T) {
	sub := &mockSubmitter{receipt: &Receipt{InvoiceID: "F-99"}}
	ref := &mockRefresher{}
	c := readyCoordinator(t, sub, ref)
	_, err := c.BeginPayment()
	require.NoError(t, err)
	_, err = c.SetAmountTendered(dec("20.00"))
	require.NoError(t, err)

	result, err := c.ConfirmSale(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, SaleOrder{
		CustomerID: "C1",
		Items:      []SaleItem{{ProductID: "P1", Quantity: 2}},
	}, sub.lastOrder())

	assert.Equal(t, "F-99", result.Receipt.InvoiceID)
	assert.True(t, result.Total.Equal(dec("5.00")))
	assert.True(t, result.Tendered.Equal(dec("20.00")))
	assert.True(t, result.ChangeDue.Equal(dec("15.00")))

	v := c.View()
	assert.True(t, v.Cart.IsEmpty())
	assert.Empty(t, v.Cart.CustomerID())
	assert.Equal(t, StatusIdle, v.Payment.Status)
	assert.Eventually(t, func() bool { return ref.done.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestConfirmSale_ExactAmount(t *testing.T) {
	sub := &mockSubmitter{}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	result, err := c.ConfirmSale(context.Background())
	require.NoError(t, err)
	assert.True(t, result.ChangeDue.IsZero())
}

func TestConfirmSale_InsufficientPayment(t *testing.T) {
	sub := &mockSubmitter{}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)
	_, err = c.SetAmountTendered(dec("4.99"))
	require.NoError(t, err)

	_, err = c.ConfirmSale(context.Background())
	require.ErrorIs(t, err, ErrInsufficientPayment)

	var insufficient *InsufficientPaymentError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Tendered.Equal(dec("4.99")))
	assert.True(t, insufficient.Total.Equal(dec("5.00")))

	assert.Zero(t, sub.calls.Load())
	assert.Equal(t, StatusAwaitingAmount, c.Payment().Status)
}

func TestConfirmSale_NotStarted(t *testing.T) {
	sub := &mockSubmitter{}
	c := readyCoordinator(t, sub, nil)

	_, err := c.ConfirmSale(context.Background())
	require.ErrorIs(t, err, ErrPaymentNotStarted)
	assert.Zero(t, sub.calls.Load())
}

func TestConfirmSale_RemoteRejectionKeepsCart(t *testing.T) {
	sub := &mockSubmitter{err: &detailErr{detail: "Cliente no existe"}}
	ref := &mockRefresher{}
	c := readyCoordinator(t, sub, ref)
	_, err := c.BeginPayment()
	require.NoError(t, err)
	_, err = c.SetAmountTendered(dec("20.00"))
	require.NoError(t, err)

	_, err = c.ConfirmSale(context.Background())
	require.Error(t, err)

	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "Cliente no existe", subErr.Error())

	v := c.View()
	assert.Equal(t, StatusAwaitingAmount, v.Payment.Status)
	assert.True(t, v.Payment.AmountTendered.Equal(dec("20.00")))
	assert.Equal(t, 2, v.Cart.ItemCount())
	assert.Equal(t, "C1", v.Cart.CustomerID())
	assert.Zero(t, ref.calls.Load())
}

func TestConfirmSale_GenericFailure(t *testing.T) {
	sub := &mockSubmitter{err: errors.New("connection refused")}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	_, err = c.ConfirmSale(context.Background())
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, GenericSubmissionFailure, subErr.Detail)
	assert.EqualError(t, errors.Unwrap(subErr), "connection refused")
}

func TestConfirmSale_RetryAfterFailure(t *testing.T) {
	sub := &mockSubmitter{err: errors.New("boom")}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	_, err = c.ConfirmSale(context.Background())
	require.Error(t, err)

	sub.err = nil
	_, err = c.ConfirmSale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), sub.calls.Load())
}

func TestConfirmSale_RefreshFailureDoesNotFailSale(t *testing.T) {
	sub := &mockSubmitter{}
	ref := &mockRefresher{err: errors.New("catalog down")}
	c := readyCoordinator(t, sub, ref)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	_, err = c.ConfirmSale(context.Background())
	require.NoError(t, err)
	assert.True(t, c.View().Cart.IsEmpty())
	assert.Eventually(t, func() bool { return ref.done.Load() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestConfirmSale_DoesNotWaitForCatalogRefresh(t *testing.T) {
	sub := &mockSubmitter{receipt: &Receipt{InvoiceID: "F-7"}}
	ref := &mockRefresher{release: make(chan struct{})}
	c := readyCoordinator(t, sub, ref)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSale(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConfirmSale blocked on the catalog refresh")
	}
	require.Eventually(t, func() bool { return ref.calls.Load() == 1 }, time.Second, time.Millisecond)

	// The caller going away does not abort the reload.
	cancel()
	assert.True(t, ref.deadline.Load(), "reload is bounded")
	assert.False(t, ref.done.Load())

	close(ref.release)
	assert.Eventually(t, func() bool { return ref.done.Load() }, time.Second, time.Millisecond)
}

func TestConfirmSale_PanicLeavesSubmitting(t *testing.T) {
	sub := &mockSubmitter{panicV: "submitter exploded"}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = c.ConfirmSale(context.Background())
	})
	assert.Equal(t, StatusAwaitingAmount, c.Payment().Status)
	assert.Equal(t, 2, c.View().Cart.ItemCount())
}

func TestConfirmSale_RejectsCommandsWhileSubmitting(t *testing.T) {
	sub := &mockSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSale(context.Background())
		done <- err
	}()
	<-sub.started

	assert.Equal(t, StatusSubmitting, c.Payment().Status)

	line, _ := c.View().Cart.LineForProduct("P1")
	_, err = c.ConfirmSale(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitting)
	_, err = c.AddProduct(product("P2", "1.00", 1))
	assert.ErrorIs(t, err, ErrAlreadySubmitting)
	assert.ErrorIs(t, c.SetQuantity(line.ID, 1), ErrAlreadySubmitting)
	assert.ErrorIs(t, c.IncrementQuantity(line.ID), ErrAlreadySubmitting)
	assert.ErrorIs(t, c.DecrementQuantity(line.ID), ErrAlreadySubmitting)
	assert.ErrorIs(t, c.SetCustomer("C2"), ErrAlreadySubmitting)
	_, err = c.BeginPayment()
	assert.ErrorIs(t, err, ErrAlreadySubmitting)
	_, err = c.SetAmountTendered(dec("1"))
	assert.ErrorIs(t, err, ErrAlreadySubmitting)
	assert.ErrorIs(t, c.CancelPayment(), ErrAlreadySubmitting)

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, StatusIdle, c.Payment().Status)
}

func TestConfirmSale_ConcurrentCallsSubmitOnce(t *testing.T) {
	sub := &mockSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ConfirmSale(context.Background())
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadySubmitting), errors.Is(err, ErrPaymentNotStarted):
				rejected.Add(1)
			}
		}()
	}

	<-sub.started
	close(sub.release)
	wg.Wait()

	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
}

func TestConfirmSale_ContextCancelledWhileSubmitting(t *testing.T) {
	sub := &mockSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSale(ctx)
		done <- err
	}()
	<-sub.started
	cancel()

	err = <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAwaitingAmount, c.Payment().Status)
}

func TestNewSaleOrder_OnePerProduct(t *testing.T) {
	e := cart.NewEngine(nil)
	for _, p := range []catalog.Product{
		product("A", "1.00", 5),
		product("B", "2.00", 5),
		product("A", "1.00", 5),
	} {
		_, err := e.AddProduct(p)
		require.NoError(t, err)
	}
	require.NoError(t, e.SetCustomer("C9"))

	order := NewSaleOrder(e.Cart())
	assert.Equal(t, "C9", order.CustomerID)
	assert.Equal(t, []SaleItem{
		{ProductID: "A", Quantity: 2},
		{ProductID: "B", Quantity: 1},
	}, order.Items)
}

func TestClose_RejectsLaterCommands(t *testing.T) {
	sub := &mockSubmitter{}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	line, _ := c.View().Cart.LineForProduct("P1")
	_, err = c.ConfirmSale(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.AddProduct(product("P2", "1.00", 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SetQuantity(line.ID, 1), ErrClosed)
	assert.ErrorIs(t, c.IncrementQuantity(line.ID), ErrClosed)
	assert.ErrorIs(t, c.DecrementQuantity(line.ID), ErrClosed)
	assert.ErrorIs(t, c.SetCustomer("C2"), ErrClosed)
	_, err = c.BeginPayment()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.SetAmountTendered(dec("1"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.CancelPayment(), ErrClosed)

	assert.Zero(t, sub.calls.Load())
}

func TestClose_RefusedWhileSubmitting(t *testing.T) {
	sub := &mockSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := readyCoordinator(t, sub, nil)
	_, err := c.BeginPayment()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSale(context.Background())
		done <- err
	}()
	<-sub.started

	assert.ErrorIs(t, c.Close(), ErrAlreadySubmitting)

	close(sub.release)
	require.NoError(t, <-done)
	require.NoError(t, c.Close())
}
