package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Drain queued remote operations once",
	Long: `Drain the queue of pending remote operations once and report the
result. Entries that exhausted their retries stay parked until
--retry-failed re-queues them.

Example usage:
  mn sync
  mn sync --retry-failed`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if a.Remote == nil {
			fmt.Fprintln(os.Stderr, "Error: not signed in; set supabase.url, supabase.anon_key, and supabase.user_id first")
			os.Exit(1)
		}

		if retry, _ := cmd.Flags().GetBool("retry-failed"); retry {
			n, err := a.Outbox.RetryFailed()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if n > 0 {
				fmt.Printf("%s Re-queued %d parked operation(s)\n", ui.RenderAccent("🔄"), n)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
		defer cancel()

		delivered, err := a.Dispatcher().Drain(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pending, _ := a.Outbox.PendingCount()
		failed, _ := a.Outbox.FailedCount()

		fmt.Printf("%s Delivered %d operation(s)\n", ui.RenderPass("✓"), delivered)
		if pending > 0 {
			fmt.Printf("%s %d still pending (will retry with backoff)\n", ui.RenderWarn("!"), pending)
		}
		if failed > 0 {
			fmt.Printf("%s %d parked after repeated failures; run 'mn sync --retry-failed'\n", ui.RenderWarn("!"), failed)
		}
	},
}

func init() {
	syncCmd.Flags().Bool("retry-failed", false, "Re-queue operations parked after repeated failures")
	rootCmd.AddCommand(syncCmd)
}
