package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/ai"
	"github.com/masternote/masternote/internal/task"
	"github.com/masternote/masternote/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "core",
	Short:   "Manage tasks",
	Long: `Create, list, update, and complete tasks.

Tasks are stored locally and usable offline. With a user identity configured,
every change is queued for the hosted backend and delivered by 'mn daemon'.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Long: `Add a new task.

With no title argument an interactive form opens. The --due flag accepts
natural language:

  mn task add "Buy milk" --due tomorrow
  mn task add "Quarterly report" --due "friday at 5pm" --priority high`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		title := strings.Join(args, " ")
		priority, _ := cmd.Flags().GetString("priority")
		description, _ := cmd.Flags().GetString("description")
		dueSpec, _ := cmd.Flags().GetString("due")

		if title == "" {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Title").Value(&title),
				huh.NewText().Title("Description").Value(&description),
				huh.NewSelect[string]().
					Title("Priority").
					Options(
						huh.NewOption("High", "high"),
						huh.NewOption("Medium", "medium"),
						huh.NewOption("Low", "low"),
					).
					Value(&priority),
				huh.NewInput().Title("Due (natural language, optional)").Value(&dueSpec),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		t := task.Task{
			Title:       title,
			Description: description,
			Priority:    task.ParsePriority(priority),
		}
		if dueSpec != "" {
			due, err := parseDue(dueSpec)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			t.DueDate = &due
		}

		created, err := a.Tasks.Add(t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(created.ID)), created.Title)
		if created.DueDate != nil {
			fmt.Printf("  due %s\n", ui.RenderMuted(created.DueDate.Format("Mon Jan 2 15:04")))
		}
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Long: `List tasks, optionally filtered by date bucket and sorted.

Filters: all, today, tomorrow, week, overdue, completed, undated
Sorts:   priority-high, priority-low, due-date, newest, oldest, alphabetical`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		filter, _ := cmd.Flags().GetString("filter")
		sortOrder, _ := cmd.Flags().GetString("sort")

		var tasks []task.Task
		if filter == "" || filter == task.FilterAll {
			tasks = a.Tasks.Sorted(task.SortOrder(sortOrder))
		} else {
			var err error
			tasks, err = a.Tasks.ByDate(filter)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("No tasks."))
			return
		}
		for _, t := range tasks {
			printTask(t)
		}
		fmt.Printf("\n%s\n", ui.RenderMuted(fmt.Sprintf("%d task(s)", len(tasks))))
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		done := task.StatusDone
		t, ok := a.Tasks.Update(resolveTaskID(a.Tasks, args[0]), task.Patch{Status: &done})
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: task %s not found\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("%s Done: %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		var patch task.Patch
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			patch.Title = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch.Description = &v
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetString("priority")
			p := task.ParsePriority(v)
			patch.Priority = &p
		}
		if cmd.Flags().Changed("status") {
			v, _ := cmd.Flags().GetString("status")
			st := task.ParseStatus(v)
			patch.Status = &st
		}
		if cmd.Flags().Changed("due") {
			v, _ := cmd.Flags().GetString("due")
			if v == "none" {
				patch.ClearDue = true
			} else {
				due, err := parseDue(v)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
				patch.DueDate = &due
			}
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			patch.Notes = &v
		}

		t, ok := a.Tasks.Update(resolveTaskID(a.Tasks, args[0]), patch)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: task %s not found\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("%s Updated %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if !a.Tasks.Delete(resolveTaskID(a.Tasks, args[0])) {
			fmt.Fprintf(os.Stderr, "Error: task %s not found\n", args[0])
			os.Exit(1)
		}
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))
	},
}

var taskClearCmd = &cobra.Command{
	Use:   "clear-completed",
	Short: "Delete all completed tasks",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		n := a.Tasks.DeleteCompleted()
		fmt.Printf("%s Removed %d completed task(s)\n", ui.RenderPass("✓"), n)
	},
}

var taskBulkCmd = &cobra.Command{
	Use:   "bulk <filter>",
	Short: "Apply a change to every task matching a filter",
	Long: `Apply one patch to every task matching a filter.

Filters: all, today, tomorrow, week, overdue, completed, undated,
plus the priority levels high, medium, low.

  mn task bulk overdue --priority high
  mn task bulk completed --due none`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		var patch task.Patch
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetString("priority")
			p := task.ParsePriority(v)
			patch.Priority = &p
		}
		if cmd.Flags().Changed("status") {
			v, _ := cmd.Flags().GetString("status")
			st := task.ParseStatus(v)
			patch.Status = &st
		}
		if cmd.Flags().Changed("due") {
			v, _ := cmd.Flags().GetString("due")
			if v == "none" {
				patch.ClearDue = true
			} else {
				due, err := parseDue(v)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
				patch.DueDate = &due
			}
		}

		n, err := a.Tasks.BulkUpdate(args[0], patch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Updated %d task(s)\n", ui.RenderPass("✓"), n)
	},
}

var taskSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the full task collection from the backend",
	Long: `Replace the local task collection with the backend's copy.

This is the explicit full sync: remote state wins. Requires a configured
user identity.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if a.Remote == nil {
			fmt.Fprintf(os.Stderr, "Error: no user identity configured (run 'mn config set supabase.user_id <id>')\n")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		fmt.Printf("%s Pulling tasks...\n", ui.RenderAccent("🔄"))
		if err := a.Tasks.SyncFromRemote(ctx, a.Remote); err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Synced %d task(s)\n", ui.RenderPass("✓"), a.Tasks.Len())
	},
}

var taskSuggestCmd = &cobra.Command{
	Use:   "suggest <prompt>",
	Short: "Ask the AI to suggest tasks",
	Long: `Ask the configured AI provider to break a goal into tasks.

Each suggested line becomes a task flagged as AI-generated; enumeration
prefixes like "1. " are stripped from titles.

  mn task suggest "prepare the quarterly board meeting"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		prompt := strings.Join(args, " ")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		res := a.Provider().Complete(ctx, ai.Request{
			System: "You are a task planner. Reply with one task per line, no commentary.",
			Messages: []ai.Message{
				{Role: "user", Content: "Break this into concrete tasks: " + prompt},
			},
		})
		if !res.Success {
			fmt.Fprintf(os.Stderr, "Error: %s\n", res.Error)
			os.Exit(1)
		}

		added := 0
		for _, line := range strings.Split(res.Content, "\n") {
			title := task.NormalizeTitle(line)
			if title == "" {
				continue
			}
			t, err := a.Tasks.Add(task.Task{Title: title, AIGenerated: true})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %q: %v\n", title, err)
				continue
			}
			fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(t.ID)), t.Title)
			added++
		}
		if added == 0 {
			fmt.Println(ui.RenderMuted("No tasks suggested."))
		}
	},
}

func printTask(t task.Task) {
	check := " "
	if t.Status == task.StatusDone {
		check = "✓"
	}
	line := fmt.Sprintf("[%s] %s %s  %s  %s",
		check, ui.RenderAccent(shortID(t.ID)), t.Title,
		ui.RenderPriority(string(t.Priority)), ui.RenderStatus(string(t.Status)))
	if t.DueDate != nil {
		line += "  " + ui.RenderMuted("due "+t.DueDate.Format("Jan 2"))
	}
	fmt.Println(line)
}

// shortID abbreviates a uuid for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveTaskID expands an abbreviated id to the full one when the prefix is
// unambiguous.
func resolveTaskID(store *task.Store, prefix string) string {
	var match string
	for _, t := range store.Tasks() {
		if t.ID == prefix {
			return prefix
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return prefix // ambiguous, let the store report not-found or exact
			}
			match = t.ID
		}
	}
	if match != "" {
		return match
	}
	return prefix
}

// parseDue turns natural language ("tomorrow", "friday at 5pm") into a time.
func parseDue(spec string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(spec, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", spec, err)
	}
	if r == nil {
		// Fall back to a plain date.
		if ts, perr := time.ParseInLocation("2006-01-02", spec, time.Local); perr == nil {
			return ts, nil
		}
		return time.Time{}, fmt.Errorf("could not understand due date %q", spec)
	}
	return r.Time, nil
}

func init() {
	taskAddCmd.Flags().StringP("priority", "p", "medium", "Priority (high, medium, low)")
	taskAddCmd.Flags().StringP("description", "d", "", "Description")
	taskAddCmd.Flags().String("due", "", "Due date in natural language")

	taskListCmd.Flags().StringP("filter", "f", "", "Date filter (today, tomorrow, week, overdue, completed, undated)")
	taskListCmd.Flags().StringP("sort", "s", "newest", "Sort order")

	taskUpdateCmd.Flags().String("title", "", "New title")
	taskUpdateCmd.Flags().StringP("description", "d", "", "New description")
	taskUpdateCmd.Flags().StringP("priority", "p", "", "New priority")
	taskUpdateCmd.Flags().String("status", "", "New status (todo, in_progress, done)")
	taskUpdateCmd.Flags().String("due", "", "New due date ('none' clears it)")
	taskUpdateCmd.Flags().String("notes", "", "New notes")

	taskBulkCmd.Flags().StringP("priority", "p", "", "Priority to apply")
	taskBulkCmd.Flags().String("status", "", "Status to apply")
	taskBulkCmd.Flags().String("due", "", "Due date to apply ('none' clears it)")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskUpdateCmd,
		taskDeleteCmd, taskClearCmd, taskBulkCmd, taskSyncCmd, taskSuggestCmd)
	rootCmd.AddCommand(taskCmd)
}
