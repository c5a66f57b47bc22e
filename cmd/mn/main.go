// Command mn is the MasterNote CLI: tasks, chat, sticky notes, and habits
// with a local-first store mirrored to the hosted backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/app"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/ui"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mn",
	Short: "MasterNote: tasks, AI chat, notes, and habits from the terminal",
	Long: `MasterNote is a local-first productivity tool.

All data lives in a local SQLite store and is usable offline. When a user
identity is configured, mutations are mirrored to the hosted backend in the
background; run 'mn daemon' to keep the mirror current.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
	rootCmd.PersistentFlags().Bool("quiet", false, "Log to file only, not stderr")
}

// openApp assembles the application for a command invocation. The caller
// must Close it.
func openApp(cmd *cobra.Command) *app.App {
	quiet, _ := cmd.Flags().GetBool("quiet")
	a, err := app.New(app.Options{Quiet: quiet})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var theme string
	if _, err := a.Store.Get(store.KeyTheme, &theme); err == nil {
		ui.SetTheme(ui.DetectTheme(theme))
	}
	return a
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
