package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/dashboard"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server that broadcasts live updates to
connected clients.

WebSocket messages include:
- task_update: Task created, updated, or deleted
- session_update: Chat session created, switched, or deleted
- note_update / habit_update: Note or habit changes
- sync_complete: An outbox drain finished
- stats: Aggregate counts

Example usage:
  mn serve                  # Start on default port 8420
  mn serve --port 9000      # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8420/ws

Stats messages carry live collection counts. Task, session, note, and
habit events are emitted as changes are detected and delivered; run
'mn daemon --dashboard' to serve the dashboard from the sync loop.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		port, _ := cmd.Flags().GetInt("port")

		config := &dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
			Stats:  a,
		}

		server := dashboard.NewServer(config)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8420, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
