// ABOUTME: Fetch and send operations that move data between the API and the store
// ABOUTME: Failures are surfaced to the notifier and leave prior state untouched

package chat

import (
	"context"
	"errors"
	"fmt"
)

// userFacing is implemented by errors that carry a server-provided message.
type userFacing interface {
	UserMessage() string
}

// errorMessage returns the text shown to the user for err.
func errorMessage(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		if msg := uf.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// LoadUsers replaces the known users with the server's list.
func (s *Store) LoadUsers(ctx context.Context) error {
	s.setUsersLoading(true)
	defer s.setUsersLoading(false)

	users, err := s.api.ListUsers(ctx)
	if err != nil {
		s.notify(err)
		return fmt.Errorf("loading users: %w", err)
	}

	s.mu.Lock()
	s.users = users
	p := s.persist
	s.mu.Unlock()

	if p != nil {
		if err := p.SaveUsers(ctx, users); err != nil {
			s.logger.Warn("failed to cache users", "error", err)
		}
	}
	return nil
}

// LoadMessages replaces the visible history with the conversation with userID.
func (s *Store) LoadMessages(ctx context.Context, userID string) error {
	s.setMessagesLoading(true)
	defer s.setMessagesLoading(false)

	msgs, err := s.api.ListMessages(ctx, userID)
	if err != nil {
		s.notify(err)
		return fmt.Errorf("loading messages for %s: %w", userID, err)
	}

	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	return nil
}

// OpenConversation selects user and fetches its history.
func (s *Store) OpenConversation(ctx context.Context, user User) error {
	s.SelectConversation(&user)
	return s.LoadMessages(ctx, user.ID)
}

// SendMessage posts payload to the active conversation and appends the
// persisted message to the history.
func (s *Store) SendMessage(ctx context.Context, payload OutgoingMessage) (*Message, error) {
	active := s.Active()
	if active == nil {
		return nil, ErrNoActiveConversation
	}

	msg, err := s.api.SendMessage(ctx, active.ID, payload)
	if err != nil {
		s.notify(err)
		return nil, fmt.Errorf("sending message to %s: %w", active.ID, err)
	}

	s.mu.Lock()
	s.messages = append(s.messages, *msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *Store) notify(err error) {
	s.logger.Error("request failed", "error", err)
	if s.notifier != nil {
		s.notifier.Error(errorMessage(err))
	}
}

func (s *Store) setUsersLoading(v bool) {
	s.mu.Lock()
	s.usersLoading = v
	s.mu.Unlock()
}

func (s *Store) setMessagesLoading(v bool) {
	s.mu.Lock()
	s.messagesLoading = v
	s.mu.Unlock()
}
