package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/boatwatch/internal/control"
	"github.com/vietddude/boatwatch/internal/core/cursor"
)

var resetReason string

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [block_height]",
	Short: "Set the ingestion cursor to a given block height",
	Long: `Set the ingestion cursor to a given block height. Blocks after it are ingested again
on the next cycle; records a reviewer already acted on keep their decision.
Prefer "rescan" to repair a range without moving the cursor.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	resetCursorCmd.Flags().StringVar(&resetReason, "reason", "manual reset", "reason recorded with the reset")
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	stores, err := control.OpenStores(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = stores.Close()
	}()

	manager := cursor.NewManager(stores.Cursor, cfg.Scanner.StartBlock)
	if err := manager.Reset(ctx, height, resetReason); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor to block %d\n", height)
}
