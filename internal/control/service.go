package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/boatwatch/internal/core/config"
	"github.com/vietddude/boatwatch/internal/indexing/health"
	"github.com/vietddude/boatwatch/internal/indexing/recovery"
	"github.com/vietddude/boatwatch/internal/indexing/scanner"
	httptransport "github.com/vietddude/boatwatch/internal/transport/http"
)

// Config holds what the service needs beyond the domain components.
type Config struct {
	App           *config.AppConfig
	RescanEnabled bool // CLI flag, and-ed with rescan.enabled
}

// Service runs the scanner, the rescan worker and the HTTP server until shutdown.
type Service struct {
	cfg          Config
	core         *Core
	scanner      *scanner.Scanner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
}

// NewService builds a service over an opened core.
func NewService(cfg Config, core *Core) *Service {
	app := cfg.App

	strategy := recovery.DefaultBackoff(nil)
	strategy.MaxAttempts = app.Scanner.MaxStorageRetries

	var lock scanner.Lock
	if app.Scanner.DistributedLock && core.Redis != nil {
		lock = core.Redis.NewLock(scannerLockName, core.lockToken, scannerLockTTL)
	}

	sc := scanner.New(
		scanner.Config{
			PollInterval:      app.Scanner.PollInterval,
			ConfirmationDepth: app.Scanner.ConfirmationDepth,
			MaxBatchBlocks:    app.Scanner.MaxBatchBlocks,
			CommitTimeout:     app.Scanner.CommitTimeout,
		},
		core.Ledger,
		core.Normalizer,
		core.Cursor,
		lock,
		strategy,
	)

	deps := map[string]health.Check{}
	if core.Stores.DB != nil {
		deps["postgres"] = core.Stores.DB.Health
	}
	if core.Redis != nil {
		deps["redis"] = core.Redis.Ping
	}
	monitor := health.NewMonitor(sc, core.Stores.Stats, deps, health.DefaultThresholds())

	api := httptransport.New(core.Stores.Records, core.Machine, slog.Default())
	server := health.NewServer(monitor, app.Server.Port, func(r chi.Router) { api.Register(r) })

	return &Service{
		cfg:          cfg,
		core:         core,
		scanner:      sc,
		healthMon:    monitor,
		healthServer: server,
		log:          slog.Default().With("component", "service"),
	}
}

// Handler exposes the HTTP surface, for tests.
func (s *Service) Handler() http.Handler {
	return s.healthServer.Handler()
}

// Run blocks until ctx is cancelled. A halted scanner does not stop the HTTP server,
// so the failure stays visible on /health.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.healthServer.Stop(shutdownCtx)
	})

	if s.core.Stores.DB != nil {
		s.core.Stores.DB.StartMetricsCollector(ctx)
	}

	g.Go(func() error {
		if err := s.scanner.Run(ctx); err != nil {
			s.log.Error("Scanner stopped with error", "error", err)
		}
		return nil
	})

	if s.core.Rescan != nil && s.cfg.RescanEnabled && s.cfg.App.Rescan.Enabled {
		s.log.Info("Starting rescan worker")
		g.Go(func() error {
			return s.core.Rescan.Run(ctx)
		})
	}

	s.log.Info("Service started", "port", s.cfg.App.Server.Port)
	err := g.Wait()
	s.log.Info("Service stopped")
	return err
}

// Status returns the scanner status.
func (s *Service) Status() scanner.Status {
	return s.scanner.Status()
}
