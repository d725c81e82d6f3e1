package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Variables from a .env file next to the
// process are loaded first so ${VAR} references can use them.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Ledger.CallTimeout == 0 {
		cfg.Ledger.CallTimeout = 10 * time.Second
	}
	for i := range cfg.Ledger.Providers {
		p := &cfg.Ledger.Providers[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("provider-%d", i)
		}
		if p.Timeout == 0 {
			p.Timeout = 30 * time.Second
		}
	}
	if cfg.Scanner.ConfirmationDepth == 0 {
		cfg.Scanner.ConfirmationDepth = 12
	}
	if cfg.Scanner.MaxBatchBlocks == 0 {
		cfg.Scanner.MaxBatchBlocks = 1000
	}
	if cfg.Scanner.PollInterval == 0 {
		cfg.Scanner.PollInterval = 5 * time.Second
	}
	if cfg.Scanner.CommitTimeout == 0 {
		cfg.Scanner.CommitTimeout = 30 * time.Second
	}
	if cfg.Scanner.MaxStorageRetries == 0 {
		cfg.Scanner.MaxStorageRetries = 5
	}
	if cfg.Rescan.ChunkSize == 0 {
		cfg.Rescan.ChunkSize = cfg.Scanner.MaxBatchBlocks
	}
	if cfg.Rescan.EmptySleep == 0 {
		cfg.Rescan.EmptySleep = 10 * time.Second
	}
	if cfg.Roles.CacheTTL == 0 {
		cfg.Roles.CacheTTL = 10 * time.Minute
	}
}

// Validate checks the settings the service cannot start without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Ledger.BoatToken == "" {
		errs = append(errs, errors.New("ledger.boat_token is required"))
	}
	if len(c.Ledger.Providers) == 0 {
		errs = append(errs, errors.New("at least one ledger provider is required"))
	}
	for i, p := range c.Ledger.Providers {
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("ledger.providers[%d].url is required", i))
		}
	}
	if c.Scanner.DistributedLock && c.Redis.URL == "" {
		errs = append(errs, errors.New("scanner.distributed_lock requires redis.url"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
