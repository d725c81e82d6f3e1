package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var rescanDrain bool

var rescanCmd = &cobra.Command{
	Use:   "rescan [start_block] [end_block]",
	Short: "Queue a block range below the cursor for re-ingestion",
	Long: `Queue a block range below the cursor for re-ingestion. The range is fetched again and
upserted without moving the cursor; records no reviewer has acted on are re-derived.
Requires redis. With --drain the queue is processed in this process.`,
	Args: cobra.ExactArgs(2),
	Run:  runRescan,
}

func init() {
	rescanCmd.Flags().BoolVar(&rescanDrain, "drain", false, "process the queue now instead of leaving it to the service")
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) {
	start, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid start block: %v\n", err)
		os.Exit(1)
	}
	end, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid end block: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()
	core := openCore(ctx, cfg)
	defer func() {
		_ = core.Close()
	}()

	if core.Rescan == nil {
		slog.Error("Rescan requires redis.url to be configured")
		os.Exit(1)
	}
	if err := core.Rescan.Enqueue(ctx, start, end); err != nil {
		slog.Error("Failed to queue range", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Queued blocks %d-%d\n", start, end)

	if !rescanDrain {
		return
	}
	for {
		found, err := core.Rescan.RunOnce(ctx)
		if err != nil {
			slog.Error("Rescan failed, range re-queued", "error", err)
			os.Exit(1)
		}
		if !found {
			break
		}
	}
	fmt.Println("Rescan queue drained")
}
