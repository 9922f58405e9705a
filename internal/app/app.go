// Package app wires the till server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/minimercado-till/internal/commerce"
	"github.com/xenking/minimercado-till/internal/domain/catalog"
	"github.com/xenking/minimercado-till/internal/handler"
	"github.com/xenking/minimercado-till/internal/session"
	"github.com/xenking/minimercado-till/pkg/health"
	"github.com/xenking/minimercado-till/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("commerce", cfg.Commerce.URL),
	)
	ctx = zctx.Base(ctx, lg)

	srv, err := newServer(ctx, cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	return srv.serve(ctx)
}

type server struct {
	cfg      *Config
	health   *health.Health
	catalog  *catalog.Service
	sessions *session.Store
	http     *http.Server
}

func newServer(ctx context.Context, cfg *Config, tp trace.TracerProvider, mp metric.MeterProvider) (*server, error) {
	lg := zctx.From(ctx)

	client, err := commerce.New(cfg.Commerce.URL,
		commerce.WithTimeout(cfg.Commerce.Timeout),
		commerce.WithTelemetry(tp, mp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create commerce client")
	}
	submitter, err := commerce.NewInstrumentedSubmitter(client, tp, mp)
	if err != nil {
		return nil, errors.Wrap(err, "instrument submitter")
	}

	catalogSvc := catalog.NewService(commerce.NewBreakingSource(client, commerce.BreakerConfig{
		ConsecutiveFailures: cfg.Commerce.BreakerFailures,
		OpenTimeout:         cfg.Commerce.BreakerTimeout,
	}, lg))
	if snap, err := catalogSvc.Refresh(ctx); err != nil {
		// The till still starts; /readyz stays red until a refresh succeeds.
		lg.Warn("Initial catalog load failed", zap.Error(err))
	} else {
		lg.Info("Catalog loaded", zap.Int("products", snap.Len()))
	}

	newIDs, err := cfg.Session.lineIDs()
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore(session.Config{
		IdleTimeout: cfg.Session.IdleTimeout,
		NewIDs:      newIDs,
	}, submitter, catalogSvc)

	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:             "catalog",
		Probe:            health.Readiness,
		Timeout:          time.Second,
		Func:             catalogSvc.Ready,
		FailureThreshold: 1,
	})
	healthSvc.Register(health.Check{
		Name:         "goroutines",
		Timeout:      time.Second,
		Func:         health.GoroutineCountCheck(10000),
		StartHealthy: true,
	})
	healthSvc.Register(health.Check{
		Name:         "gc_pause",
		Timeout:      time.Second,
		Func:         health.GCMaxPauseCheck(time.Second),
		StartHealthy: true,
	})

	h := handler.NewHandler(catalogSvc, sessions)

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/api", h.Routes())

	return &server{
		cfg:      cfg,
		health:   healthSvc,
		catalog:  catalogSvc,
		sessions: sessions,
		http: &http.Server{
			ReadHeaderTimeout: time.Second,
			ReadTimeout:       5 * time.Second,
			// A sale confirmation waits for one commerce call; the catalog
			// reload that follows runs after the reply is written.
			WriteTimeout:   cfg.Commerce.Timeout + 5*time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
			Addr:           cfg.Addr,
			Handler: httpmiddleware.Wrap(root,
				httpmiddleware.Recovery(),
				httpmiddleware.Instrument("till-api", tp, mp),
				httpmiddleware.CORS(httpmiddleware.CORSConfig{
					AllowOrigins:     cfg.CORS.Origins,
					AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
					AllowCredentials: cfg.CORS.AllowCredentials,
					MaxAge:           86400,
				}),
				httpmiddleware.RequestID(),
				httpmiddleware.InjectLogger(lg),
				httpmiddleware.LogRequests(),
			),
		},
	}, nil
}

// serve runs the server and its background loops until ctx is cancelled,
// then drains and shuts down.
func (s *server) serve(ctx context.Context) error {
	lg := zctx.From(ctx)

	bg, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	s.health.Start(bg, 10*time.Second)
	defer s.health.Stop()
	s.sessions.StartCleanup(bg)

	g, gCtx := errgroup.WithContext(ctx)
	if interval := s.cfg.Catalog.RefreshInterval; interval > 0 {
		g.Go(func() error {
			s.catalog.Run(bg, interval)
			return nil
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		s.health.Drain()
		lg.Info("Readiness set to false, draining", zap.Duration("delay", s.cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(s.cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", s.cfg.Graceful.ShutdownTimeout),
			zap.Int("open_sessions", s.sessions.Len()),
		)
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		stopBackground()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", s.cfg.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
