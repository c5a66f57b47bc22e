package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/masternote/masternote/internal/ai"
	"github.com/masternote/masternote/internal/app"
	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/store"
	"github.com/masternote/masternote/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	GroupID: "core",
	Short:   "Chat with the AI assistant",
	Long: `Open the chat REPL against the current session.

Responses stream in as they arrive and every turn is saved locally.
In-REPL commands:

  /new [folder-id]     start a new session
  /list                list sessions
  /switch <id>         switch session
  /delete <id>         delete a session
  /clear               reset the current session
  /folder ...          manage folders (add, rm, rename, move, list)
  /quit                leave the REPL`,
	Run: func(cmd *cobra.Command, args []string) {
		a := openApp(cmd)
		defer a.Close()

		// Remote folder layout and last-open session, best effort.
		if a.Remote != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.Chats.LoadRemotePreferences(ctx, a.Remote)
			cancel()
		}

		provider := a.Provider()
		model := selectedModel(a)

		current, _ := a.Chats.Get(a.Chats.CurrentSessionID())
		fmt.Printf("%s %s  %s\n", ui.RenderTitle("MasterNote Chat"),
			ui.RenderMuted("("+provider.Name()+")"), ui.RenderAccent(current.Title))
		fmt.Println(ui.RenderMuted("Type /help for commands, /quit to exit."))

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(ui.RenderAccent("> "))
			if !scanner.Scan() {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := runChatCommand(a, line); quit {
					return
				}
				continue
			}
			runChatTurn(a, provider, model, line)
		}
	},
}

// runChatCommand handles a /command line. Returns true to leave the REPL.
func runChatCommand(a *app.App, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true

	case "/help":
		fmt.Println("/new [folder-id], /list, /switch <id>, /delete <id>, /clear, /folder <add|rm|rename|move|list>, /quit")

	case "/new":
		folderID := ""
		if len(fields) > 1 {
			folderID = fields[1]
		}
		sess := a.Chats.CreateSession(folderID)
		fmt.Printf("%s New session %s\n", ui.RenderPass("✓"), ui.RenderAccent(sess.ID))

	case "/list":
		current := a.Chats.CurrentSessionID()
		for _, sess := range a.Chats.Sessions() {
			marker := "  "
			if sess.ID == current {
				marker = ui.RenderPass("* ")
			}
			fmt.Printf("%s%s  %s  %s\n", marker, ui.RenderAccent(sess.ID), sess.Title,
				ui.RenderMuted(sess.UpdatedAt.Format("Jan 2 15:04")))
		}

	case "/switch":
		if len(fields) < 2 {
			fmt.Println(ui.RenderWarn("Usage: /switch <id>"))
			return false
		}
		if !a.Chats.SwitchSession(fields[1]) {
			fmt.Println(ui.RenderError("No such session"))
			return false
		}
		sess, _ := a.Chats.Get(fields[1])
		fmt.Printf("%s Switched to %s\n", ui.RenderPass("✓"), sess.Title)

	case "/delete":
		if len(fields) < 2 {
			fmt.Println(ui.RenderWarn("Usage: /delete <id>"))
			return false
		}
		a.Chats.DeleteSession(fields[1])
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))

	case "/clear":
		a.Chats.ClearSession(a.Chats.CurrentSessionID())
		fmt.Printf("%s Session cleared\n", ui.RenderPass("✓"))

	case "/folder":
		runFolderCommand(a, fields[1:])

	default:
		fmt.Println(ui.RenderWarn("Unknown command; /help lists commands"))
	}
	return false
}

func runFolderCommand(a *app.App, fields []string) {
	usage := "Usage: /folder add <name> | rm <id> | rename <id> <name> | move <session-id> <folder-id> | list"
	if len(fields) == 0 {
		fmt.Println(ui.RenderWarn(usage))
		return
	}
	switch fields[0] {
	case "add":
		if len(fields) < 2 {
			fmt.Println(ui.RenderWarn(usage))
			return
		}
		f := a.Chats.AddFolder(strings.Join(fields[1:], " "))
		fmt.Printf("%s Folder %s (%s)\n", ui.RenderPass("✓"), f.Name, ui.RenderAccent(f.ID))

	case "rm":
		if len(fields) < 2 || !a.Chats.DeleteFolder(fields[1]) {
			fmt.Println(ui.RenderError("No such folder"))
			return
		}
		fmt.Printf("%s Deleted\n", ui.RenderPass("✓"))

	case "rename":
		if len(fields) < 3 || !a.Chats.RenameFolder(fields[1], strings.Join(fields[2:], " ")) {
			fmt.Println(ui.RenderError("No such folder"))
			return
		}
		fmt.Printf("%s Renamed\n", ui.RenderPass("✓"))

	case "move":
		if len(fields) < 3 || !a.Chats.MoveSessionToFolder(fields[1], fields[2]) {
			fmt.Println(ui.RenderError("No such session or folder"))
			return
		}
		fmt.Printf("%s Moved\n", ui.RenderPass("✓"))

	case "list":
		for _, f := range a.Chats.Folders() {
			fmt.Printf("%s %s\n", ui.RenderAccent(f.ID), f.Name)
		}

	default:
		fmt.Println(ui.RenderWarn(usage))
	}
}

// runChatTurn sends one user message and streams the reply into the session.
func runChatTurn(a *app.App, provider ai.Provider, model, text string) {
	sessionID := a.Chats.CurrentSessionID()
	sess, ok := a.Chats.AddMessage(sessionID, chat.Message{
		Role:    chat.RoleUser,
		Content: text,
	})
	if !ok {
		fmt.Println(ui.RenderError("Session vanished; try /list"))
		return
	}
	sessionID = sess.ID // placeholder promotion may have allocated a real id

	history := make([]ai.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}

	// Seed the assistant message; stream chunks update it in place.
	reply := chat.Message{Role: chat.RoleAI}
	sess, ok = a.Chats.AddMessage(sessionID, reply)
	if !ok {
		fmt.Println(ui.RenderError("Session vanished; try /list"))
		return
	}
	replyID := sess.Messages[len(sess.Messages)-1].ID

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var acc strings.Builder
	res := provider.Stream(ctx, ai.Request{
		Model:    model,
		Messages: history,
	}, func(chunk string) {
		fmt.Print(chunk)
		acc.WriteString(chunk)
		content := acc.String()
		a.Chats.UpdateMessage(sessionID, replyID, &content, nil)
	})
	fmt.Println()

	if !res.Success {
		// Keep the failure in the transcript so the user sees what happened.
		content := res.Error
		a.Chats.UpdateMessage(sessionID, replyID, &content, map[string]string{"error": "true"})
		fmt.Println(ui.RenderError(res.Error))
	} else if acc.Len() == 0 && res.Content != "" {
		// Non-streaming providers deliver everything at once.
		fmt.Println(res.Content)
		a.Chats.UpdateMessage(sessionID, replyID, &res.Content, nil)
	}
	a.Chats.PersistSession(sessionID)
}

// selectedModel resolves the model: local setting first, config second.
func selectedModel(a *app.App) string {
	var model string
	if _, err := a.Store.Get(store.KeySelectedModel, &model); err == nil && model != "" {
		return model
	}
	return a.Config.AI.Model
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
