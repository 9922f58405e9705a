package catalog

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNotLoaded is returned by Ready until the first successful refresh.
var ErrNotLoaded = errors.New("catalog not loaded")

// Service holds the catalog snapshot shared by every checkout session and
// refreshes it from a Source.
type Service struct {
	source  Source
	current atomic.Pointer[Snapshot]
	loaded  atomic.Bool
	group   singleflight.Group
	now     func() time.Time

	// fetching serializes remote fetches so they complete in call order.
	fetching sync.Mutex

	mu      sync.Mutex
	pending uint64 // generation new callers join
	started uint64 // latest generation whose request went out
}

// NewService creates a Service with an empty snapshot.
func NewService(source Source) *Service {
	s := &Service{
		source: source,
		now:    time.Now,
	}
	s.current.Store(NewSnapshot(nil, time.Time{}))
	return s
}

// Current returns the latest snapshot. It is never nil.
func (s *Service) Current() *Snapshot {
	return s.current.Load()
}

// Refresh fetches a new snapshot and makes it current. The returned snapshot
// always comes from a request sent after Refresh was called: callers that
// arrive while a fetch is in flight share one follow-up fetch instead of
// joining the stale one. On failure the previous snapshot is kept.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	if s.started >= s.pending {
		s.pending++
	}
	gen := s.pending
	ch := s.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		// The fetch outlives any single caller that gives up waiting.
		return s.fetch(context.WithoutCancel(ctx), gen)
	})
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (s *Service) fetch(ctx context.Context, gen uint64) (*Snapshot, error) {
	s.fetching.Lock()
	defer s.fetching.Unlock()

	s.mu.Lock()
	s.started = gen
	s.mu.Unlock()

	products, err := s.source.FetchCatalog(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch catalog")
	}
	snap := NewSnapshot(products, s.now())
	s.current.Store(snap)
	s.loaded.Store(true)
	return snap, nil
}

// Run refreshes the catalog every interval until ctx is cancelled. Failures
// are logged and the previous snapshot stays in use.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zctx.From(ctx).Warn("Catalog refresh failed", zap.Error(err))
				continue
			}
			zctx.From(ctx).Debug("Catalog refreshed", zap.Int("products", snap.Len()))
		}
	}
}

// Ready reports whether at least one snapshot has been loaded.
func (s *Service) Ready(_ context.Context) error {
	if !s.loaded.Load() {
		return ErrNotLoaded
	}
	return nil
}
