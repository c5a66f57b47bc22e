package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/daemon"
	"github.com/masternote/masternote/internal/dashboard"
	"github.com/masternote/masternote/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the background sync daemon.

The daemon drains queued remote operations on an interval, watches the
data directory for changes made by other processes, and drains again
shortly after each change. With --dashboard it also serves the
WebSocket dashboard and broadcasts sync results to connected clients.

Example usage:
  mn daemon                       # Drain on the configured interval
  mn daemon --interval 10         # Drain every 10 seconds
  mn daemon --dashboard           # Also serve the dashboard`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if a.Remote == nil {
			fmt.Fprintln(os.Stderr, "Error: not signed in; set supabase.url, supabase.anon_key, and supabase.user_id first")
			os.Exit(1)
		}

		interval, _ := cmd.Flags().GetInt("interval")
		if interval <= 0 {
			interval = a.Config.Sync.IntervalSeconds
		}

		var server *dashboard.Server
		if withDash, _ := cmd.Flags().GetBool("dashboard"); withDash {
			port, _ := cmd.Flags().GetInt("port")
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
				Stats:  a,
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()
			fmt.Printf("%s Dashboard on http://localhost:%d\n", ui.RenderAccent("🔄"), port)
		}

		cfg := daemon.DefaultConfig()
		cfg.SyncInterval = time.Duration(interval) * time.Second
		cfg.Logger = a.Logger

		d, err := daemon.New(a.Dispatcher(), a.Outbox, a.Config.DataDir, server, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Syncing every %ds, watching %s\n", ui.RenderAccent("🔄"), interval, a.Config.DataDir)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	daemonCmd.Flags().Int("interval", 0, "Sync interval in seconds (default from config)")
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8420, "Dashboard port (with --dashboard)")
	rootCmd.AddCommand(daemonCmd)
}
