package config

import (
	"time"

	redisclient "github.com/vietddude/boatwatch/internal/infra/redis"
	"github.com/vietddude/boatwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Ledger   LedgerConfig       `yaml:"ledger"`
	Scanner  ScannerConfig      `yaml:"scanner"`
	Rescan   RescanConfig       `yaml:"rescan"`
	Roles    RolesConfig        `yaml:"roles"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"` // empty url = in-memory storage
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// LedgerConfig holds the contract addresses and RPC endpoints.
type LedgerConfig struct {
	BoatToken    string           `yaml:"boat_token"`
	Records      string           `yaml:"records"`       // defaults to boat_token
	RoleRegistry string           `yaml:"role_registry"` // defaults to boat_token
	CallTimeout  time.Duration    `yaml:"call_timeout"`
	Providers    []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ScannerConfig holds ingestion settings.
type ScannerConfig struct {
	StartBlock        uint64        `yaml:"start_block"` // cursor value on first run
	ConfirmationDepth uint64        `yaml:"confirmation_depth"`
	MaxBatchBlocks    uint64        `yaml:"max_batch_blocks"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	CommitTimeout     time.Duration `yaml:"commit_timeout"`
	MaxStorageRetries int           `yaml:"max_storage_retries"`
	DistributedLock   bool          `yaml:"distributed_lock"` // requires redis
}

// RescanConfig holds targeted re-scan settings. The worker runs only with redis.
type RescanConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ChunkSize  uint64        `yaml:"chunk_size"`
	EmptySleep time.Duration `yaml:"empty_sleep"`
}

// RolesConfig holds role lookup settings.
type RolesConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"` // requires redis
}
