package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/masternote/masternote/internal/app"
	"github.com/masternote/masternote/internal/config"
	"github.com/masternote/masternote/internal/remote"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Show and change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", ui.RenderTitle("Config dir:"), config.Dir())
		fmt.Printf("  data_dir:         %s\n", cfg.DataDir)
		fmt.Printf("  ai.provider:      %s\n", cfg.AI.Provider)
		fmt.Printf("  ai.model:         %s\n", orMuted(cfg.AI.Model))
		fmt.Printf("  ai.openai_key:    %s\n", maskKey(cfg.AI.OpenAIKey))
		fmt.Printf("  ai.anthropic_key: %s\n", maskKey(cfg.AI.AnthropicKey))
		fmt.Printf("  supabase.url:     %s\n", orMuted(cfg.Supabase.URL))
		fmt.Printf("  supabase.user_id: %s\n", orMuted(cfg.Supabase.UserID))
		fmt.Printf("  dashboard.port:   %d\n", cfg.Dashboard.Port)
		fmt.Printf("  sync.interval:    %ds\n", cfg.Sync.IntervalSeconds)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by its dotted key.

Examples:
  mn config set ai.provider anthropic
  mn config set supabase.url https://xyz.supabase.co
  mn config set sync.interval_seconds 60`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.Save(map[string]any{args[0]: args[1]}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Set %s\n", ui.RenderPass("✓"), args[0])
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider>",
	Short: "Store an AI API key (openai or anthropic)",
	Long: `Store an API key for an AI provider. The key is read from the
terminal without echo, saved to the local config file, and mirrored to
the remote when signed in.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		provider := strings.ToLower(args[0])
		if provider != "openai" && provider != "anthropic" {
			fmt.Fprintf(os.Stderr, "Error: unknown provider %q (want openai or anthropic)\n", args[0])
			os.Exit(1)
		}

		fmt.Printf("%s API key for %s: ", ui.RenderAccent("🔑"), provider)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read key: %v\n", err)
			os.Exit(1)
		}
		key := strings.TrimSpace(string(raw))
		if key == "" {
			fmt.Fprintln(os.Stderr, "Error: empty key")
			os.Exit(1)
		}

		if err := config.Save(map[string]any{"ai." + provider + "_key": key}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Saved %s key locally\n", ui.RenderPass("✓"), provider)

		a := openApp(cmd)
		defer a.Close()
		if a.Remote == nil {
			return
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		keys := remote.APIKeys{}
		if provider == "openai" {
			keys.OpenAIKey = key
		} else {
			keys.AnthropicKey = key
		}
		if err := a.Remote.PutAPIKeys(ctx, keys); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to mirror key to remote: %v\n", err)
			return
		}
		fmt.Printf("%s Mirrored to remote\n", ui.RenderPass("✓"))
	},
}

var configPullKeysCmd = &cobra.Command{
	Use:   "pull-keys",
	Short: "Fetch AI API keys mirrored on the remote",
	Long: `Fetch the AI API keys stored in the remote api_keys table and save
them to the local config file. The counterpart of 'mn config set-key' on
a new machine.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if a.Remote == nil {
			fmt.Fprintln(os.Stderr, "Error: not signed in; set supabase.url, supabase.anon_key, and supabase.user_id first")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		keys, err := a.Remote.GetAPIKeys(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		values := map[string]any{}
		if keys.OpenAIKey != "" {
			values["ai.openai_key"] = keys.OpenAIKey
		}
		if keys.AnthropicKey != "" {
			values["ai.anthropic_key"] = keys.AnthropicKey
		}
		if len(values) == 0 {
			fmt.Println(ui.RenderMuted("No keys stored remotely."))
			return
		}
		if err := config.Save(values); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Pulled %d key(s)\n", ui.RenderPass("✓"), len(values))
	},
}

var configSetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Select the AI model used by chat",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		if err := a.Store.Put(store.KeySelectedModel, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Model set to %s\n", ui.RenderPass("✓"), args[0])
		mirrorUserPreferences(a, func(p *remote.UserPreferences) { p.SelectedModel = args[0] })
	},
}

var configSetThemeCmd = &cobra.Command{
	Use:   "set-theme <dark|light>",
	Short: "Set the terminal color theme",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		theme := strings.ToLower(args[0])
		if theme != "dark" && theme != "light" {
			fmt.Fprintf(os.Stderr, "Error: unknown theme %q (want dark or light)\n", args[0])
			os.Exit(1)
		}

		a := openApp(cmd)
		defer a.Close()

		if err := a.Store.Put(store.KeyTheme, theme); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Theme set to %s\n", ui.RenderPass("✓"), theme)
		mirrorUserPreferences(a, func(p *remote.UserPreferences) { p.DarkMode = theme == "dark" })
	},
}

// mirrorUserPreferences read-merges-writes the user_preferences row so one
// field change does not clobber the other. Best effort when signed in.
func mirrorUserPreferences(a *app.App, apply func(*remote.UserPreferences)) {
	if a.Remote == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	prefs, err := a.Remote.GetUserPreferences(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read remote preferences: %v\n", err)
		return
	}
	apply(&prefs)
	if err := a.Remote.PutUserPreferences(ctx, prefs); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to mirror preferences: %v\n", err)
		return
	}
	fmt.Printf("%s Mirrored to remote\n", ui.RenderPass("✓"))
}

func maskKey(key string) string {
	if key == "" {
		return ui.RenderMuted("(not set)")
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func orMuted(s string) string {
	if s == "" {
		return ui.RenderMuted("(not set)")
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetKeyCmd, configPullKeysCmd, configSetModelCmd, configSetThemeCmd)
	rootCmd.AddCommand(configCmd)
}
