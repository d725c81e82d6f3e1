package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/boatwatch/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor, ledger head and record counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	core := openCore(ctx, cfg)
	defer func() {
		_ = core.Close()
	}()

	cur, err := core.Cursor.Get(ctx)
	if err != nil {
		slog.Error("Failed to read cursor", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "CURSOR\t%d\n", cur.LastBlock)
	_, _ = fmt.Fprintf(w, "UPDATED\t%s\n", cur.UpdatedAt.Format(time.RFC3339))

	height, err := core.Ledger.BlockHeight(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(w, "HEAD\tunavailable (%v)\n", err)
	} else {
		lag, _ := core.Cursor.GetLag(ctx, height)
		_, _ = fmt.Fprintf(w, "HEAD\t%d\n", height)
		_, _ = fmt.Fprintf(w, "LAG\t%d\n", lag)
	}

	events, certs, err := core.Stores.Stats.CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to count records", "error", err)
		os.Exit(1)
	}
	_, _ = fmt.Fprintln(w, "\nSTATUS\tEVENTS\tCERTIFICATES")
	statuses := []domain.Status{
		domain.StatusPending, domain.StatusSuspicious, domain.StatusValidated, domain.StatusRejected,
	}
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", s, events[s], certs[s])
	}

	if core.Redis != nil {
		ranges, err := core.Redis.PendingRanges(ctx)
		if err == nil {
			_, _ = fmt.Fprintf(w, "\nRESCAN QUEUE\t%d ranges\t%v\n", len(ranges), ranges)
		}
	}
	_ = w.Flush()
}
