// ABOUTME: Interactive prompt loop for browsing users and chatting
// ABOUTME: Slash commands drive the store; other lines are sent to the open conversation

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/chat"
)

// repl is the prompt loop bound to one store.
type repl struct {
	store  *chat.Store
	con    *console
	self   string
	logger *slog.Logger
}

func newREPL(store *chat.Store, con *console, self string, logger *slog.Logger) *repl {
	return &repl{
		store:  store,
		con:    con,
		self:   self,
		logger: logger.With("component", "repl"),
	}
}

func (r *repl) names() names {
	return names{self: r.self, users: r.store.Users()}
}

// run reads lines from in until EOF, /quit or ctx is done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()

	for {
		r.prompt()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-lines:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if quit := r.handle(ctx, input); quit {
			return nil
		}
	}
}

func (r *repl) prompt() {
	if active := r.store.Active(); active != nil {
		r.con.printf("[%s]> ", r.names().of(active.ID))
		return
	}
	r.con.printf("> ")
}

// handle executes one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, input string) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		r.printHelp()
	case "/users":
		if arg == "refresh" {
			if err := r.store.LoadUsers(ctx); err != nil {
				return false
			}
		}
		r.printUsers()
	case "/open":
		r.open(ctx, arg)
	case "/close":
		r.store.SelectConversation(nil)
		r.con.println("Conversation closed")
	case "/unread":
		r.printUnread()
	case "/history":
		r.history(ctx)
	default:
		if strings.HasPrefix(cmd, "/") {
			r.con.printf("Unknown command %s. /help for commands.\n", cmd)
			return false
		}
		r.send(ctx, input)
	}
	return false
}

func (r *repl) printHelp() {
	r.con.println("Commands:")
	r.con.println("  /users [refresh]  List users with unread counts")
	r.con.println("  /open <id|name>   Open a conversation and load its history")
	r.con.println("  /close            Close the open conversation")
	r.con.println("  /unread           Show users with unread messages")
	r.con.println("  /history          Reload and show the open conversation")
	r.con.println("  /help             Show this help")
	r.con.println("  /quit             Exit")
	r.con.println("Any other line is sent to the open conversation.")
}

func (r *repl) printUsers() {
	st := r.store.Snapshot()
	if len(st.Users) == 0 {
		if st.UsersLoading {
			r.con.println("Loading users...")
		} else {
			r.con.println("No users")
		}
		return
	}

	for _, u := range st.Users {
		marker := " "
		if st.Active != nil && st.Active.ID == u.ID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %s", marker, u.ID, u.FullName)
		if n := st.Unread[u.ID]; n > 0 {
			line += " " + color.New(color.FgRed, color.Bold).Sprintf("(%d unread)", n)
		}
		r.con.println(line)
	}
}

func (r *repl) printUnread() {
	unread := r.store.Snapshot().Unread
	n := r.names()

	found := false
	for _, id := range slices.Sorted(maps.Keys(unread)) {
		if unread[id] == 0 {
			continue
		}
		found = true
		r.con.printf("  %s: %d\n", n.of(id), unread[id])
	}
	if !found {
		r.con.println("No unread messages")
	}
}

func (r *repl) open(ctx context.Context, arg string) {
	if arg == "" {
		r.con.println("Usage: /open <id|name>")
		return
	}
	user, ok := findUser(r.store.Users(), arg)
	if !ok {
		r.con.printf("No user matching %q. Use /users to list them.\n", arg)
		return
	}

	if err := r.store.OpenConversation(ctx, user); err != nil {
		return
	}
	r.printMessages()
}

func (r *repl) history(ctx context.Context) {
	active := r.store.Active()
	if active == nil {
		r.con.println("No conversation open. Use /open <id|name> first.")
		return
	}
	if err := r.store.LoadMessages(ctx, active.ID); err != nil {
		return
	}
	r.printMessages()
}

func (r *repl) printMessages() {
	msgs := r.store.Messages()
	if len(msgs) == 0 {
		r.con.println("No messages yet")
		return
	}
	n := r.names()
	for _, m := range msgs {
		r.con.println(formatMessage(m, n))
	}
}

func (r *repl) send(ctx context.Context, text string) {
	msg, err := r.store.SendMessage(ctx, chat.OutgoingMessage{Content: text})
	if errors.Is(err, chat.ErrNoActiveConversation) {
		r.con.println("No conversation open. Use /open <id|name> first.")
		return
	}
	if err != nil {
		return
	}
	r.con.println(formatMessage(*msg, r.names()))
}

// printReceipts renders live deliveries until receipts closes.
func (r *repl) printReceipts(receipts <-chan chat.Receipt) {
	for rc := range receipts {
		switch rc.Delivery {
		case chat.DeliveredLive:
			r.con.printf("\n%s\n", formatMessage(rc.Message, r.names()))
		case chat.CountedUnread:
			r.con.printf("\n%s New message from %s (%d unread)\n",
				color.New(color.FgRed, color.Bold).Sprint("●"),
				r.names().of(rc.Message.SenderID),
				rc.Unread,
			)
		case chat.DroppedDuplicate:
			r.logger.Debug("duplicate delivery ignored", "message_id", rc.Message.ID)
			continue
		}
		r.prompt()
	}
}

// findUser matches arg against user IDs, then full names case-insensitively.
func findUser(users []chat.User, arg string) (chat.User, bool) {
	for _, u := range users {
		if u.ID == arg {
			return u, true
		}
	}
	for _, u := range users {
		if strings.EqualFold(u.FullName, arg) {
			return u, true
		}
	}
	return chat.User{}, false
}
