// Package ui provides the terminal styling for the CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the active color scheme.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Muted   lipgloss.Color
	IsDark  bool
}

// DarkTheme returns the dark scheme.
func DarkTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("#7C3AED"),
		Accent:  lipgloss.Color("#06B6D4"),
		Success: lipgloss.Color("#10B981"),
		Warning: lipgloss.Color("#F59E0B"),
		Danger:  lipgloss.Color("#EF4444"),
		Muted:   lipgloss.Color("#6B7280"),
		IsDark:  true,
	}
}

// LightTheme returns the light scheme.
func LightTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("#5B21B6"),
		Accent:  lipgloss.Color("#0E7490"),
		Success: lipgloss.Color("#047857"),
		Warning: lipgloss.Color("#B45309"),
		Danger:  lipgloss.Color("#B91C1C"),
		Muted:   lipgloss.Color("#9CA3AF"),
		IsDark:  false,
	}
}

// DetectTheme picks a scheme from the terminal background. An explicit
// preference ("dark" or "light", as stored under the theme setting) wins.
func DetectTheme(preference string) Theme {
	switch preference {
	case "dark":
		return DarkTheme()
	case "light":
		return LightTheme()
	}
	if termenv.HasDarkBackground() {
		return DarkTheme()
	}
	return LightTheme()
}

var active = DarkTheme()

// SetTheme installs the active theme used by the render helpers.
func SetTheme(t Theme) { active = t }

// RenderAccent styles informational highlights (ids, counts, headings).
func RenderAccent(s string) string {
	return lipgloss.NewStyle().Foreground(active.Accent).Bold(true).Render(s)
}

// RenderPass styles success output.
func RenderPass(s string) string {
	return lipgloss.NewStyle().Foreground(active.Success).Render(s)
}

// RenderWarn styles warnings.
func RenderWarn(s string) string {
	return lipgloss.NewStyle().Foreground(active.Warning).Render(s)
}

// RenderError styles failures.
func RenderError(s string) string {
	return lipgloss.NewStyle().Foreground(active.Danger).Bold(true).Render(s)
}

// RenderMuted styles secondary detail (timestamps, paths).
func RenderMuted(s string) string {
	return lipgloss.NewStyle().Foreground(active.Muted).Render(s)
}

// RenderTitle styles section titles.
func RenderTitle(s string) string {
	return lipgloss.NewStyle().Foreground(active.Primary).Bold(true).Render(s)
}

// RenderPriority colors a task priority name.
func RenderPriority(priority string) string {
	switch priority {
	case "high":
		return lipgloss.NewStyle().Foreground(active.Danger).Render(priority)
	case "low":
		return lipgloss.NewStyle().Foreground(active.Muted).Render(priority)
	default:
		return lipgloss.NewStyle().Foreground(active.Warning).Render(priority)
	}
}

// RenderStatus colors a task status name.
func RenderStatus(status string) string {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(active.Success).Render(status)
	case "in_progress":
		return lipgloss.NewStyle().Foreground(active.Accent).Render(status)
	default:
		return lipgloss.NewStyle().Foreground(active.Muted).Render(status)
	}
}
