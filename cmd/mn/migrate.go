package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/remote"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/ui"
)

// legacyMessage is the shape of pre-session conversation history entries.
type legacyMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

var migrateMessagesCmd = &cobra.Command{
	Use:     "migrate-messages",
	GroupID: "sync",
	Short:   "Push legacy conversation history to the remote",
	Long: `Push locally stored pre-session conversation history to the remote
messages table. This is a one-shot migration: after a successful push
the local history key is cleared.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if a.Remote == nil {
			fmt.Fprintln(os.Stderr, "Error: not signed in; nothing to migrate to")
			os.Exit(1)
		}

		key := store.ConversationHistoryKey(a.Config.Supabase.UserID)
		var history []legacyMessage
		ok, err := a.Store.Get(key, &history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read local history: %v\n", err)
			os.Exit(1)
		}
		if !ok || len(history) == 0 {
			fmt.Println(ui.RenderMuted("No legacy conversation history found."))
			return
		}

		rows := make([]remote.MessageRow, 0, len(history))
		for _, m := range history {
			created := m.Timestamp
			if created == "" {
				created = time.Now().UTC().Format(time.RFC3339)
			}
			rows = append(rows, remote.MessageRow{
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: created,
			})
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := a.Remote.InsertMessages(ctx, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Error: migration failed, local history kept: %v\n", err)
			os.Exit(1)
		}

		if err := a.Store.Delete(key); err != nil {
			a.Logger.Printf("Warning: failed to clear migrated history: %v", err)
		}
		fmt.Printf("%s Migrated %d message(s)\n", ui.RenderPass("✓"), len(rows))
	},
}

func init() {
	rootCmd.AddCommand(migrateMessagesCmd)
}
