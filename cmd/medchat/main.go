// ABOUTME: Interactive CLI for the chat synchronization engine.
// ABOUTME: Provides a readline-style loop with history, delete, and feedback commands.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/medassist/chatsync/internal/config"
	"github.com/medassist/chatsync/internal/conversation"
	"github.com/medassist/chatsync/internal/engine"
	"github.com/medassist/chatsync/internal/feedback"
	"github.com/medassist/chatsync/internal/history"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: MEDCHAT_CONFIG env var > XDG_CONFIG_HOME/medchat/config.yaml > ~/.config/medchat/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MEDCHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "medchat", "config.yaml")
}

func main() {
	configPath := flag.String("config", getConfigPath(), "Path to config file")
	server := flag.String("server", "", "Server base URL (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := engine.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	gray := color.New(color.FgHiBlack)
	fmt.Printf("medchat %s connected to %s\n", version, cfg.Server.BaseURL)
	if err := e.Health(ctx); err != nil {
		color.Yellow("Server unreachable, messages will be kept locally: %v", err)
	}
	gray.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := run(ctx, e); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// loadConfig loads the config file if present. A missing file plus a -server
// flag still yields a usable config.
func loadConfig(path, serverOverride string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if serverOverride == "" {
			return nil, fmt.Errorf("no config at %s and no -server flag given", path)
		}
		cfg = &config.Config{}
	}
	if serverOverride != "" {
		cfg.Server.BaseURL = serverOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func run(ctx context.Context, e *engine.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	var lastMessageID string

	for {
		fmt.Print("> ")

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			handleCommand(ctx, e, input, lastMessageID)
			fmt.Println()
			continue
		}

		// Plain text is a user message
		id, err := e.SaveUserMessage(ctx, input)
		if err != nil {
			color.Red("[error] %v", err)
		} else {
			lastMessageID = id
			printState(e, e.CurrentConversationID())
		}
		fmt.Println()
	}
}

func handleCommand(ctx context.Context, e *engine.Engine, input, lastMessageID string) {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		printHelp()

	case "/list":
		listConversations(ctx, e)

	case "/load":
		if args == "" {
			fmt.Println("Usage: /load <conversation_id>")
			return
		}
		loadConversation(ctx, e, args)

	case "/new":
		id := e.NewConversation(ctx)
		fmt.Printf("Started new conversation %s\n", id)

	case "/delete":
		if args == "" {
			args = e.CurrentConversationID()
		}
		if args == "" {
			fmt.Println("No conversation to delete")
			return
		}
		result, err := e.DeleteConversation(ctx, args)
		if err != nil {
			color.Yellow("[warn] delete not confirmed by server: %v", err)
			return
		}
		fmt.Printf("Deleted %d conversation(s), %d message(s)\n",
			result.Conversations, result.Messages)

	case "/like", "/dislike":
		if lastMessageID == "" {
			fmt.Println("No message to rate yet")
			return
		}
		t := feedback.TypeHelpful
		if cmd == "/dislike" {
			t = feedback.TypeNeedsImprovement
		}
		if _, err := e.SubmitFeedback(ctx, lastMessageID, t, args); err != nil {
			color.Red("[error] %v", err)
			return
		}
		fmt.Printf("Recorded %s feedback\n", t)

	case "/health":
		if err := e.Health(ctx); err != nil {
			color.Red("unhealthy: %v", err)
		} else {
			color.Green("healthy")
		}

	default:
		fmt.Printf("Unknown command: %s (try /help)\n", cmd)
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /list              List conversations, newest first")
	fmt.Println("  /load <id>         Load a conversation transcript")
	fmt.Println("  /new               Start a new conversation")
	fmt.Println("  /delete [id]       Delete a conversation (default: current)")
	fmt.Println("  /like [details]    Rate the last message helpful")
	fmt.Println("  /dislike [details] Rate the last message needs-improvement")
	fmt.Println("  /health            Check server connectivity")
	fmt.Println("  /help              Show this help")
	fmt.Println("  /quit              Exit")
}

func listConversations(ctx context.Context, e *engine.Engine) {
	summaries := e.ListConversations(ctx)
	if len(summaries) == 0 {
		fmt.Println("No conversations")
		return
	}

	current := e.CurrentConversationID()
	for _, s := range summaries {
		marker := "  "
		if s.ID == current {
			marker = color.CyanString("* ")
		}
		title := s.Title
		if title == "" {
			title = color.HiBlackString("(untitled)")
		}
		when := ""
		if !s.LastMessageAt.IsZero() {
			when = color.HiBlackString(" " + s.LastMessageAt.Format("Jan 02 15:04"))
		}
		fmt.Printf("%s%s  %s%s\n", marker, s.ID, title, when)
	}
}

func loadConversation(ctx context.Context, e *engine.Engine, id string) {
	detail, err := e.LoadConversation(ctx, id)
	if err != nil {
		color.Red("[error] %v", err)
		return
	}

	if detail.Title != "" {
		color.Cyan("%s", detail.Title)
		fmt.Println(strings.Repeat("-", 60))
	}
	for _, msg := range detail.Messages {
		prefix := color.BlueString("you> ")
		if msg.Sender != history.SenderUser {
			prefix = color.GreenString("assistant> ")
		}
		fmt.Printf("%s%s\n", prefix, msg.Content)
	}
	fmt.Println(strings.Repeat("-", 60))
	printState(e, id)
}

// printState reports whether the conversation is known to the server.
func printState(e *engine.Engine, id string) {
	switch e.ConversationState(id) {
	case conversation.StateCommitted:
		color.Green("[synced %s]", id)
	case conversation.StateDegraded:
		color.Yellow("[local only %s]", id)
	case conversation.StatePending:
		color.HiBlack("[syncing %s]", id)
	}
}
