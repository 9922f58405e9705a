package commerce

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/minimercado-till/internal/domain/catalog"
)

// BreakerConfig tunes the catalog circuit breaker.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker. Zero means 3.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a probe. Zero
	// means 30s.
	OpenTimeout time.Duration
}

// BreakingSource guards catalog fetches with a circuit breaker so a down
// commerce service is not hammered by the refresh loop. Sale submission is
// never routed through it.
type BreakingSource struct {
	next catalog.Source
	cb   *gobreaker.CircuitBreaker[[]catalog.Product]
}

// NewBreakingSource wraps next. State changes are logged through lg.
func NewBreakingSource(next catalog.Source, cfg BreakerConfig, lg *zap.Logger) *BreakingSource {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[[]catalog.Product](gobreaker.Settings{
		Name:        "commerce.catalog",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: serviceReachable,
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return &BreakingSource{next: next, cb: cb}
}

// FetchCatalog implements catalog.Source.
func (s *BreakingSource) FetchCatalog(ctx context.Context) ([]catalog.Product, error) {
	products, err := s.cb.Execute(func() ([]catalog.Product, error) {
		return s.next.FetchCatalog(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		zctx.From(ctx).Debug("Catalog fetch short-circuited", zap.Error(err))
		return nil, errors.Wrap(err, "commerce service unavailable")
	}
	return products, err
}

// State reports the breaker state for diagnostics.
func (s *BreakingSource) State() gobreaker.State {
	return s.cb.State()
}

// serviceReachable counts client-side rejections as successes: the service
// answered, so there is nothing to back off from.
func serviceReachable(err error) bool {
	if err == nil {
		return true
	}
	var remote *RemoteError
	return errors.As(err, &remote) && remote.StatusCode < http.StatusInternalServerError
}
