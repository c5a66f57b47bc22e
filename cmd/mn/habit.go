package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/habit"
	"github.com/masternote/masternote/internal/ui"
)

var habitCmd = &cobra.Command{
	Use:     "habit",
	GroupID: "core",
	Short:   "Track daily habits",
	Long: `Track daily habits and streaks.

Examples:
  mn habit add "Morning run" --emoji 🏃
  mn habit done run
  mn habit list`,
}

var habitAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a habit",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		emoji, _ := cmd.Flags().GetString("emoji")
		h, err := a.Habits.Add(strings.Join(args, " "), emoji)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(shortID(h.ID)), h.Name)
	},
}

var habitDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Toggle today's completion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		id := resolveHabitID(a.Habits, args[0])
		h, ok := a.Habits.Get(id)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no habit matching %q\n", args[0])
			os.Exit(1)
		}
		if a.Habits.ToggleToday(id) {
			streak := a.Habits.CurrentStreak(id)
			fmt.Printf("%s %s done today (streak: %d)\n", ui.RenderPass("✓"), h.Name, streak)
		} else {
			fmt.Printf("%s %s unmarked for today\n", ui.RenderWarn("↩"), h.Name)
		}
	},
}

var habitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List habits with streaks",
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		habits := a.Habits.All()
		if len(habits) == 0 {
			fmt.Println(ui.RenderMuted("No habits. Add one with 'mn habit add'."))
			return
		}
		for _, h := range habits {
			mark := ui.RenderMuted("·")
			if h.CompletedOn(todayStamp()) {
				mark = ui.RenderPass("✓")
			}
			name := h.Name
			if h.Emoji != "" {
				name = h.Emoji + " " + name
			}
			fmt.Printf("%s %s %s  %s\n", mark, ui.RenderAccent(shortID(h.ID)), name,
				ui.RenderMuted(fmt.Sprintf("streak %d, best %d",
					a.Habits.CurrentStreak(h.ID), a.Habits.LongestStreak(h.ID))))
		}
	},
}

var habitRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a habit",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		id := resolveHabitID(a.Habits, args[0])
		if err := a.Habits.Rename(id, strings.Join(args[1:], " ")); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Renamed\n", ui.RenderPass("✓"))
	},
}

var habitRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a habit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		a.Habits.Delete(resolveHabitID(a.Habits, args[0]))
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))
	},
}

func todayStamp() string {
	return time.Now().Format(habit.DateLayout)
}

func resolveHabitID(store *habit.Store, prefix string) string {
	var match string
	for _, h := range store.All() {
		if h.ID == prefix {
			return prefix
		}
		if strings.HasPrefix(h.ID, prefix) || strings.EqualFold(h.Name, prefix) {
			if match != "" {
				return prefix
			}
			match = h.ID
		}
	}
	if match != "" {
		return match
	}
	return prefix
}

func init() {
	habitAddCmd.Flags().String("emoji", "", "Emoji shown next to the habit")

	habitCmd.AddCommand(habitAddCmd, habitDoneCmd, habitListCmd, habitRenameCmd, habitRmCmd)
	rootCmd.AddCommand(habitCmd)
}
