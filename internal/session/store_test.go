package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/minimercado-till/internal/domain/cart"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
	"github.com/xenking/minimercado-till/internal/domain/checkout"
)

// --- Mock implementations ---

type blockingSubmitter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSubmitter) SubmitSale(ctx context.Context, _ checkout.SaleOrder) (*checkout.Receipt, error) {
	close(b.started)
	select {
	case <-b.release:
		return &checkout.Receipt{InvoiceID: "F-1"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// --- Helpers ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(cfg Config, sub checkout.Submitter) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStore(cfg, sub, nil)
	s.now = clock.Now
	return s, clock
}

// --- Tests ---

func TestStore_CreateGetDelete(t *testing.T) {
	s, _ := newTestStore(Config{}, nil)

	a := s.Create()
	b := s.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotSame(t, a.Coordinator, b.Coordinator)
	assert.Equal(t, 2, s.Len())

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, s.Delete(a.ID))
	_, err = s.Get(a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(a.ID), ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestStore_SessionsAreIndependent(t *testing.T) {
	s, _ := newTestStore(Config{}, nil)
	a := s.Create()
	b := s.Create()

	p := catalog.Product{ID: "P1", Name: "x", Price: decimal.NewFromInt(1), Stock: 3}
	_, err := a.Coordinator.AddProduct(p)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Coordinator.View().Cart.ItemCount())
	assert.True(t, b.Coordinator.View().Cart.IsEmpty())
}

func TestStore_LineIDGenerator(t *testing.T) {
	var calls int
	s, _ := newTestStore(Config{NewIDs: func() cart.IDGenerator {
		calls++
		return cart.UUIDs{}
	}}, nil)

	sess := s.Create()
	line, err := sess.Coordinator.AddProduct(catalog.Product{ID: "P1", Price: decimal.NewFromInt(1), Stock: 1})
	require.NoError(t, err)
	assert.Len(t, line.ID, 36)
	assert.Equal(t, 1, calls)
}

func TestStore_EvictIdle(t *testing.T) {
	s, clock := newTestStore(Config{IdleTimeout: 10 * time.Minute}, nil)

	stale := s.Create()
	clock.Advance(6 * time.Minute)
	fresh := s.Create()
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, s.EvictIdle())
	_, err := s.Get(stale.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(fresh.ID)
	require.NoError(t, err)
}

func TestStore_GetKeepsSessionAlive(t *testing.T) {
	s, clock := newTestStore(Config{IdleTimeout: 10 * time.Minute}, nil)
	sess := s.Create()

	clock.Advance(9 * time.Minute)
	_, err := s.Get(sess.ID)
	require.NoError(t, err)
	clock.Advance(9 * time.Minute)

	assert.Zero(t, s.EvictIdle())
	assert.Equal(t, 1, s.Len())
}

func TestStore_EvictionDisabled(t *testing.T) {
	s, clock := newTestStore(Config{}, nil)
	s.Create()
	clock.Advance(24 * time.Hour)

	assert.Zero(t, s.EvictIdle())
	assert.Equal(t, 1, s.Len())
}

func TestStore_SubmittingSessionIsNeverEvicted(t *testing.T) {
	sub := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	s, clock := newTestStore(Config{IdleTimeout: time.Minute}, sub)

	sess := s.Create()
	c := sess.Coordinator
	_, err := c.AddProduct(catalog.Product{ID: "P1", Price: decimal.NewFromInt(2), Stock: 1})
	require.NoError(t, err)
	require.NoError(t, c.SetCustomer("C1"))
	_, err = c.BeginPayment()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.ConfirmSale(context.Background())
		done <- err
	}()
	<-sub.started

	clock.Advance(time.Hour)
	assert.Zero(t, s.EvictIdle())
	require.ErrorIs(t, s.Delete(sess.ID), checkout.ErrAlreadySubmitting)

	close(sub.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, s.EvictIdle())
}

func TestStore_DeleteClosesHeldHandle(t *testing.T) {
	sub := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	s, _ := newTestStore(Config{}, sub)

	sess := s.Create()
	c := sess.Coordinator
	_, err := c.AddProduct(catalog.Product{ID: "P1", Price: decimal.NewFromInt(2), Stock: 1})
	require.NoError(t, err)
	require.NoError(t, c.SetCustomer("C1"))
	_, err = c.BeginPayment()
	require.NoError(t, err)

	// A request looked the session up before it was deleted.
	held, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.NoError(t, s.Delete(sess.ID))

	_, err = held.Coordinator.ConfirmSale(context.Background())
	require.ErrorIs(t, err, checkout.ErrClosed)
	select {
	case <-sub.started:
		t.Fatal("deleted session submitted a sale")
	default:
	}
	_, err = s.Get(sess.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EvictedHandleIsClosed(t *testing.T) {
	s, clock := newTestStore(Config{IdleTimeout: time.Minute}, nil)

	sess := s.Create()
	clock.Advance(time.Hour)
	require.Equal(t, 1, s.EvictIdle())

	_, err := sess.Coordinator.AddProduct(catalog.Product{ID: "P1", Price: decimal.NewFromInt(2), Stock: 1})
	require.ErrorIs(t, err, checkout.ErrClosed)
}

func TestStore_StartCleanupStopsWithContext(t *testing.T) {
	s := NewStore(Config{IdleTimeout: time.Millisecond}, nil, nil)
	s.Create()

	ctx, cancel := context.WithCancel(context.Background())
	s.StartCleanup(ctx)

	require.Eventually(t, func() bool { return s.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()
}
