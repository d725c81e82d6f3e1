// Package control builds the service from configuration and runs its components.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/boatwatch/internal/core/authz"
	"github.com/vietddude/boatwatch/internal/core/config"
	"github.com/vietddude/boatwatch/internal/core/cursor"
	"github.com/vietddude/boatwatch/internal/core/validation"
	"github.com/vietddude/boatwatch/internal/indexing/normalizer"
	"github.com/vietddude/boatwatch/internal/indexing/rescan"
	"github.com/vietddude/boatwatch/internal/infra/ledger"
	redisclient "github.com/vietddude/boatwatch/internal/infra/redis"
	"github.com/vietddude/boatwatch/internal/infra/rpc/provider"
	"github.com/vietddude/boatwatch/internal/infra/rpc/routing"
	"github.com/vietddude/boatwatch/internal/infra/storage"
	"github.com/vietddude/boatwatch/internal/infra/storage/memory"
	"github.com/vietddude/boatwatch/internal/infra/storage/postgres"
)

const (
	scannerLockName = "scanner"
	scannerLockTTL  = 5 * time.Minute
	rescanLockTTL   = 10 * time.Minute
)

// Stores bundles the repositories of the selected backend.
type Stores struct {
	Cursor  storage.CursorRepository
	Applier storage.BatchApplier
	Boats   storage.BoatRepository
	Records storage.RecordRepository
	Stats   storage.StatsRepository

	DB *postgres.DB // nil in memory mode
}

// OpenStores connects to Postgres when a database URL is configured and falls back to
// in-memory storage otherwise.
func OpenStores(ctx context.Context, cfg postgres.Config) (*Stores, error) {
	if cfg.URL == "" {
		store := memory.NewMemoryStorage()
		cursorRepo := memory.NewCursorRepo(store)
		records := memory.NewRecordRepo(store)
		slog.Info("Using Memory storage")
		return &Stores{
			Cursor:  cursorRepo,
			Applier: cursorRepo,
			Boats:   memory.NewBoatRepo(store),
			Records: records,
			Stats:   records,
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	cursorRepo := postgres.NewCursorRepo(db)
	records := postgres.NewRecordRepo(db)
	slog.Info("Using PostgreSQL storage")
	return &Stores{
		Cursor:  cursorRepo,
		Applier: cursorRepo,
		Boats:   postgres.NewBoatRepo(db),
		Records: records,
		Stats:   records,
		DB:      db,
	}, nil
}

// Close releases the database connection, if any.
func (s *Stores) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// NewLedgerClient builds the ledger client over the configured providers.
func NewLedgerClient(cfg config.LedgerConfig) (*ledger.Client, error) {
	router := routing.NewRouter()
	for _, p := range cfg.Providers {
		router.AddProvider(provider.NewHTTPProvider(p.Name, p.URL, p.Timeout))
	}
	return ledger.NewClient(router, ledger.Config{
		BoatToken:    cfg.BoatToken,
		Records:      cfg.Records,
		RoleRegistry: cfg.RoleRegistry,
		CallTimeout:  cfg.CallTimeout,
	})
}

// Core holds the components shared by the service and the CLI commands.
type Core struct {
	Stores     *Stores
	Ledger     *ledger.Client
	Redis      *redisclient.Client // nil without redis
	Cursor     *cursor.DefaultManager
	Gate       *authz.Gate
	Normalizer *normalizer.Normalizer
	Machine    *validation.Machine
	Rescan     *rescan.Worker // nil without redis

	lockToken string
}

// OpenCore connects storage, ledger and redis and wires the domain components.
func OpenCore(ctx context.Context, cfg *config.AppConfig) (*Core, error) {
	stores, err := OpenStores(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	client, err := NewLedgerClient(cfg.Ledger)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("failed to init ledger client: %w", err)
	}

	var rc *redisclient.Client
	if cfg.Redis.URL != "" {
		rc, err = redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			if cfg.Scanner.DistributedLock {
				_ = stores.Close()
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			slog.Warn("Failed to connect to Redis, cache and rescan disabled", "error", err)
			rc = nil
		}
	}

	var roleCache authz.RoleCache
	if rc != nil {
		roleCache = redisclient.NewRoleCache(rc, cfg.Roles.CacheTTL)
	}
	gate := authz.NewGate(authz.NewLedgerRoles(client, roleCache), client)
	norm := normalizer.New(stores.Boats, gate)
	manager := cursor.NewManager(stores.Cursor, cfg.Scanner.StartBlock)

	core := &Core{
		Stores:     stores,
		Ledger:     client,
		Redis:      rc,
		Cursor:     manager,
		Gate:       gate,
		Normalizer: norm,
		Machine:    validation.NewMachine(stores.Records, gate, client),
		lockToken:  uuid.NewString(),
	}

	if rc != nil {
		core.Rescan = rescan.NewWorker(
			rescan.WorkerConfig{ChunkSize: cfg.Rescan.ChunkSize, EmptySleep: cfg.Rescan.EmptySleep},
			rc,
			client,
			norm,
			stores.Applier,
			manager,
			func(key string) rescan.Lock {
				return rc.NewLock("rescan:"+key, core.lockToken, rescanLockTTL)
			},
			nil,
		)
	}
	return core, nil
}

// Close releases redis and the database.
func (c *Core) Close() error {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	return c.Stores.Close()
}
