// ABOUTME: Serialized terminal output shared by the prompt loop and live receipts
// ABOUTME: Also implements chat.Notifier by printing error toasts

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/chat"
)

// console serializes writes so receipts never split a prompt line.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Error implements chat.Notifier.
func (c *console) Error(msg string) {
	c.printf("%s %s\n", color.RedString("[error]"), msg)
}

var _ chat.Notifier = (*console)(nil)

// names resolves user IDs for display.
type names struct {
	self  string
	users []chat.User
}

func (n names) of(id string) string {
	if id == n.self {
		return "you"
	}
	for _, u := range n.users {
		if u.ID == id {
			if u.FullName != "" {
				return u.FullName
			}
			break
		}
	}
	return id
}

func formatMessage(m chat.Message, n names) string {
	ts := ""
	if !m.CreatedAt.IsZero() {
		ts = color.HiBlackString("[" + m.CreatedAt.Local().Format(time.Kitchen) + "] ")
	}

	sender := n.of(m.SenderID)
	if m.SenderID == n.self {
		sender = color.BlueString(sender)
	} else {
		sender = color.GreenString(sender)
	}

	text := m.Content
	if m.Image != "" {
		if text != "" {
			text += " "
		}
		text += color.YellowString("[image]")
	}
	return fmt.Sprintf("%s%s: %s", ts, sender, text)
}
