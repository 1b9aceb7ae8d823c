// ABOUTME: Entry point for coven-chat, a terminal client for one-to-one chat
// ABOUTME: Wires config, session, REST client, socket, local cache and the conversation store

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/socket"
	"github.com/2389/coven-chat/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file (.yaml or .toml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, configPath string, in io.Reader, out, errOut io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, errOut)
	con := newConsole(out)

	token := cfg.Auth.Token
	if token == "" {
		token = auth.LoadToken()
	}
	session, err := auth.NewSession(token, logger)
	if err != nil {
		return fmt.Errorf("creating session (set %s or auth.token): %w", auth.TokenEnv, err)
	}

	client, err := api.New(api.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   session.Token,
		Timeout: cfg.Server.RequestTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating api client: %w", err)
	}

	chatStore := chat.NewStore(client, con, logger)

	if cfg.Database.Path != "" {
		db, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening local cache: %w", err)
		}
		defer db.Close()

		chatStore.SetPersister(db)
		if err := chatStore.Restore(ctx); err != nil {
			logger.Warn("failed to restore cached state", "error", err)
		}
	}

	if cfg.Socket.DedupeWindow > 0 {
		window := dedupe.NewWindow(cfg.Socket.DedupeWindow, cfg.Socket.DedupeSize)
		defer window.Close()
		chatStore.SetDeduper(window)
	}

	printBanner(con, cfg, session)

	sock, err := session.Connect(ctx, cfg.Server.SocketURL, cfg.Socket.ReadTimeout)
	if err != nil {
		return fmt.Errorf("connecting socket: %w", err)
	}
	sockCtx, stopSocket := context.WithCancel(ctx)
	defer session.Disconnect()
	defer stopSocket()

	r := newREPL(chatStore, con, session.UserID, logger)

	receipts := startLive(sockCtx, chatStore, sock, con, logger)
	defer chatStore.UnsubscribeFromMessages(sock)
	go r.printReceipts(receipts)

	// Failures are already shown through the notifier.
	_ = chatStore.LoadUsers(ctx)

	return r.run(ctx, in)
}

// startLive subscribes the store to sock and only then starts the read
// loop, so no newMessage frame is published without a subscriber.
func startLive(ctx context.Context, s *chat.Store, sock *socket.Client, notifier chat.Notifier, logger *slog.Logger) <-chan chat.Receipt {
	receipts := s.SubscribeToMessages(ctx, sock)

	go func() {
		if err := sock.Run(ctx); err != nil {
			logger.Error("socket closed", "error", err)
			notifier.Error("Lost connection to chat server; live messages stopped")
		}
	}()

	return receipts
}

func printBanner(con *console, cfg *config.Config, session *auth.Session) {
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	con.printf("%s %s\n", color.CyanString("coven-chat"), gray.Sprintf("version: %s", version))
	con.printf("%sServer:  %s\n", green.Sprint("  ▶ "), cfg.Server.BaseURL)
	con.printf("%sSocket:  %s\n", green.Sprint("  ▶ "), cfg.Server.SocketURL)
	con.printf("%sUser:    %s\n", green.Sprint("  ▶ "), session.UserID)
	if cfg.Database.Path != "" {
		con.printf("%sCache:   %s\n", green.Sprint("  ▶ "), cfg.Database.Path)
	}
	con.println("Type /help for commands. Ctrl+C to quit.")
	con.println()
}

