package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/export"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "advanced",
	Short:   "Export all data to a JSON or YAML file",
	Long: `Export tasks, notes, projects, habits, and settings to a single file.

The format follows the file extension (.json, .yaml, .yml) unless
--format is given.

Examples:
  mn export backup.json
  mn export backup.yaml --format yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = export.DetectFormat(args[0])
		}

		settings := map[string]any{}
		var theme string
		if ok, _ := a.Store.Get(store.KeyTheme, &theme); ok {
			settings["theme"] = theme
		}
		var model string
		if ok, _ := a.Store.Get(store.KeySelectedModel, &model); ok {
			settings["selected_model"] = model
		}

		b := export.Bundle{
			ExportedAt: time.Now().UTC(),
			Tasks:      a.Tasks.Tasks(),
			Notes:      a.Notes.Notes(""),
			Projects:   a.Notes.Projects(),
			Habits:     a.Habits.All(),
			Settings:   settings,
		}

		f, err := os.Create(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := export.Write(f, b, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Exported %d task(s), %d note(s), %d habit(s) to %s\n",
			ui.RenderPass("✓"), len(b.Tasks), len(b.Notes), len(b.Habits), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import data from an exported file",
	Long: `Import a previously exported file, replacing local data.

The file is fully validated before anything is written; a malformed
file leaves the current data untouched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = export.DetectFormat(args[0])
		}

		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		b, err := export.Read(f, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		a.Tasks.Replace(b.Tasks)
		a.Notes.Replace(b.Notes, b.Projects)
		a.Habits.Replace(b.Habits)
		if theme, ok := b.Settings["theme"].(string); ok && theme != "" {
			if err := a.Store.Put(store.KeyTheme, theme); err != nil {
				a.Logger.Printf("Warning: failed to restore theme: %v", err)
			}
		}
		if model, ok := b.Settings["selected_model"].(string); ok && model != "" {
			if err := a.Store.Put(store.KeySelectedModel, model); err != nil {
				a.Logger.Printf("Warning: failed to restore model: %v", err)
			}
		}
		fmt.Printf("%s Imported %d task(s), %d note(s), %d habit(s)\n",
			ui.RenderPass("✓"), len(b.Tasks), len(b.Notes), len(b.Habits))
	},
}

func init() {
	exportCmd.Flags().String("format", "", "Output format (json or yaml)")
	importCmd.Flags().String("format", "", "Input format (json or yaml)")
	rootCmd.AddCommand(exportCmd, importCmd)
}
