package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/note"
	"github.com/masternote/masternote/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "core",
	Short:   "Manage sticky notes",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <title> [content]",
	Short: "Add a note",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		content := ""
		if len(args) > 1 {
			content = strings.Join(args[1:], " ")
		}
		color, _ := cmd.Flags().GetString("color")
		projectID, _ := cmd.Flags().GetString("project")

		n, err := a.Notes.AddNote(args[0], content, color, projectID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(n.ID)), n.Title)
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes (pinned first)",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		projectID, _ := cmd.Flags().GetString("project")
		notes := a.Notes.Notes(projectID)
		if len(notes) == 0 {
			fmt.Println(ui.RenderMuted("No notes."))
			return
		}
		for _, n := range notes {
			pin := "  "
			if n.Pinned {
				pin = ui.RenderWarn("📌")
			}
			fmt.Printf("%s %s %s  %s\n", pin, ui.RenderAccent(shortID(n.ID)), n.Title,
				ui.RenderMuted(n.UpdatedAt.Format("Jan 2 15:04")))
			if n.Content != "" {
				fmt.Printf("     %s\n", ui.RenderMuted(firstLine(n.Content)))
			}
		}
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		id := resolveNoteID(a.Notes, args[0])

		if !cmd.Flags().Changed("content") {
			if existing, ok := a.Notes.GetNote(id); ok {
				content = existing.Content
			}
		}
		if err := a.Notes.UpdateNote(id, title, content); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Updated\n", ui.RenderPass("✓"))
	},
}

var notePinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Toggle a note's pin",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		pinned, err := a.Notes.TogglePin(resolveNoteID(a.Notes, args[0]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if pinned {
			fmt.Printf("%s Pinned\n", ui.RenderPass("✓"))
		} else {
			fmt.Printf("%s Unpinned\n", ui.RenderPass("✓"))
		}
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		a.Notes.DeleteNote(resolveNoteID(a.Notes, args[0]))
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))
	},
}

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "core",
	Short:   "Manage note projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a project",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		p, err := a.Notes.AddProject(strings.Join(args, " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Project %s (%s)\n", ui.RenderPass("✓"), p.Name, ui.RenderAccent(shortID(p.ID)))
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		projects := a.Notes.Projects()
		if len(projects) == 0 {
			fmt.Println(ui.RenderMuted("No projects."))
			return
		}
		for _, p := range projects {
			count := len(a.Notes.Notes(p.ID))
			fmt.Printf("%s %s  %s\n", ui.RenderAccent(shortID(p.ID)), p.Name,
				ui.RenderMuted(fmt.Sprintf("%d note(s)", count)))
		}
	},
}

var projectRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a project (its notes survive)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		a.Notes.DeleteProject(args[0])
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))
	},
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func resolveNoteID(store *note.Store, prefix string) string {
	var match string
	for _, n := range store.Notes("") {
		if n.ID == prefix {
			return prefix
		}
		if strings.HasPrefix(n.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = n.ID
		}
	}
	if match != "" {
		return match
	}
	return prefix
}

func init() {
	noteAddCmd.Flags().String("color", "", "Note color")
	noteAddCmd.Flags().String("project", "", "Project id")
	noteListCmd.Flags().String("project", "", "Filter by project id")
	noteEditCmd.Flags().String("title", "", "New title")
	noteEditCmd.Flags().String("content", "", "New content")

	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteEditCmd, notePinCmd, noteRmCmd)
	projectCmd.AddCommand(projectAddCmd, projectListCmd, projectRmCmd)
	rootCmd.AddCommand(noteCmd, projectCmd)
}
