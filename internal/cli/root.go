package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/boatwatch/internal/control"
	"github.com/vietddude/boatwatch/internal/core/config"
)

var (
	cfgPath      string
	isDebug      bool
	rescanRanges bool
)

var rootCmd = &cobra.Command{
	Use:   "boatwatch",
	Short: "Boat registry indexer and validation service",
	Long: `boatwatch follows the boat registry contracts, stores every ownership change,
lifecycle event and certificate, and lets authorized reviewers validate them.`,
	Run: runService,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&rescanRanges, "rescan-ranges", true, "enable rescan range processing")
}

// loadConfig loads the config file and initializes logging from it.
func loadConfig() *config.AppConfig {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	return cfg
}

func openCore(ctx context.Context, cfg *config.AppConfig) *control.Core {
	core, err := control.OpenCore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	return core
}

func runService(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core := openCore(ctx, cfg)
	defer func() {
		if err := core.Close(); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	svc := control.NewService(control.Config{App: cfg, RescanEnabled: rescanRanges}, core)
	if err := svc.Run(ctx); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}
