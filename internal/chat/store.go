// ABOUTME: Conversation state store: users, active conversation, history, unread counts
// ABOUTME: Implements the live-append versus unread-count reconciliation for incoming messages

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// ErrNoActiveConversation is returned when an operation needs an active
// conversation and none is selected.
var ErrNoActiveConversation = errors.New("no active conversation")

// API is the REST collaborator used to fetch and send messages.
type API interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListMessages(ctx context.Context, userID string) ([]Message, error)
	SendMessage(ctx context.Context, userID string, payload OutgoingMessage) (*Message, error)
}

// Notifier displays user-facing errors.
type Notifier interface {
	Error(msg string)
}

// Persister stores unread counts and the user list across restarts.
type Persister interface {
	SaveUnread(ctx context.Context, userID string, count int) error
	LoadUnread(ctx context.Context) (map[string]int, error)
	SaveUsers(ctx context.Context, users []User) error
	LoadUsers(ctx context.Context) ([]User, error)
}

// Deduper reports whether a message ID was already seen, recording it if not.
type Deduper interface {
	Seen(id string) bool
}

// Store is the conversation state container. All methods are safe for
// concurrent use; each one is a single atomic state transition.
type Store struct {
	api      API
	notifier Notifier
	logger   *slog.Logger

	persist Persister
	dedupe  Deduper

	// persistMu orders unread writes. It is never acquired while mu is held.
	persistMu sync.Mutex

	mu              sync.RWMutex
	messages        []Message
	users           []User
	active          *User
	unread          map[string]int
	usersLoading    bool
	messagesLoading bool
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(api API, notifier Notifier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:      api,
		notifier: notifier,
		logger:   logger.With("component", "chat"),
		unread:   make(map[string]int),
	}
}

// SetPersister enables write-through persistence of unread counts and users.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
}

// SetDeduper enables dropping of redelivered messages by ID.
func (s *Store) SetDeduper(d Deduper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedupe = d
}

// Restore loads persisted unread counts and cached users. It is a no-op
// without a persister.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.RLock()
	p := s.persist
	s.mu.RUnlock()
	if p == nil {
		return nil
	}

	counts, err := p.LoadUnread(ctx)
	if err != nil {
		return fmt.Errorf("loading unread counts: %w", err)
	}
	users, err := p.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("loading cached users: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range counts {
		if s.active != nil && s.active.ID == id {
			continue
		}
		s.unread[id] = n
	}
	if len(s.users) == 0 {
		s.users = users
	}
	s.logger.Debug("restored state", "unread_entries", len(counts), "users", len(users))
	return nil
}

// IncrementUnread adds one to the user's unread counter.
func (s *Store) IncrementUnread(userID string) {
	s.mu.Lock()
	s.unread[userID]++
	s.mu.Unlock()
	s.flushUnread(userID)
}

// ClearUnread resets the user's unread counter to zero.
func (s *Store) ClearUnread(userID string) {
	s.mu.Lock()
	s.unread[userID] = 0
	s.mu.Unlock()
	s.flushUnread(userID)
}

// SelectConversation makes user the active conversation, zeroing its unread
// counter first. A nil user deselects.
func (s *Store) SelectConversation(user *User) {
	if user == nil {
		s.mu.Lock()
		s.active = nil
		s.mu.Unlock()
		return
	}

	u := *user
	s.mu.Lock()
	s.unread[u.ID] = 0
	s.active = &u
	s.mu.Unlock()
	s.flushUnread(u.ID)
}

// ReceiveMessage handles one real-time message. Messages from the active
// conversation's user are appended to the history; all others increment
// the sender's unread counter and are left for the next fetch.
func (s *Store) ReceiveMessage(msg Message) Receipt {
	r := s.receive(msg)
	if r.Delivery == CountedUnread {
		s.flushUnread(msg.SenderID)
	}
	return r
}

func (s *Store) receive(msg Message) Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dedupe != nil && msg.ID != "" && s.dedupe.Seen(msg.ID) {
		s.logger.Debug("dropped duplicate message", "message_id", msg.ID)
		return Receipt{Message: msg, Delivery: DroppedDuplicate, Unread: s.unread[msg.SenderID]}
	}

	if s.active != nil && msg.SenderID == s.active.ID {
		s.messages = append(s.messages, msg)
		return Receipt{Message: msg, Delivery: DeliveredLive, Unread: s.unread[msg.SenderID]}
	}

	s.unread[msg.SenderID]++
	return Receipt{Message: msg, Delivery: CountedUnread, Unread: s.unread[msg.SenderID]}
}

// Unread returns the user's unread counter.
func (s *Store) Unread(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[userID]
}

// Active returns a copy of the active conversation's user, or nil.
func (s *Store) Active() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	u := *s.active
	return &u
}

// Messages returns a copy of the active conversation's history.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Users returns a copy of the known users.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.users)
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Messages:        slices.Clone(s.messages),
		Users:           slices.Clone(s.users),
		Unread:          maps.Clone(s.unread),
		UsersLoading:    s.usersLoading,
		MessagesLoading: s.messagesLoading,
	}
	if s.active != nil {
		u := *s.active
		st.Active = &u
	}
	return st
}

// flushUnread writes the current counter for userID to the persister with
// mu released. Each flush reads the counter under persistMu, so the last
// write carries the latest value.
func (s *Store) flushUnread(userID string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	p := s.persist
	count := s.unread[userID]
	s.mu.RUnlock()

	if p == nil {
		return
	}
	if err := p.SaveUnread(context.Background(), userID, count); err != nil {
		s.logger.Warn("failed to persist unread count",
			"error", err,
			"user_id", userID,
		)
	}
}
