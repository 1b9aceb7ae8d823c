// ABOUTME: Session holder that owns the user's identity and socket connection
// ABOUTME: The chat store reads its event source from here

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/socket"
)

// Session is the authenticated user and their socket connection.
type Session struct {
	UserID string
	Token  string

	logger *slog.Logger

	mu     sync.RWMutex
	socket *socket.Client
}

// NewSession builds a session from a token, taking the user ID from its
// subject. Pass nil logger for default.
func NewSession(token string, logger *slog.Logger) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	userID, err := SubjectFromToken(token)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		UserID: userID,
		Token:  token,
		logger: logger.With("component", "session"),
	}, nil
}

// Connect dials the socket server for this session. A previous connection
// is closed first.
func (s *Session) Connect(ctx context.Context, socketURL string, readTimeout time.Duration) (*socket.Client, error) {
	client, err := socket.Dial(ctx, socketURL, socket.Options{
		UserID:      s.UserID,
		Token:       s.Token,
		ReadTimeout: readTimeout,
	}, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.socket
	s.socket = client
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.logger.Info("socket connected", "user_id", s.UserID)
	return client, nil
}

// Socket returns the current connection, or nil before Connect.
func (s *Session) Socket() *socket.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.socket
}

// Disconnect closes the socket, if any.
func (s *Session) Disconnect() {
	s.mu.Lock()
	client := s.socket
	s.socket = nil
	s.mu.Unlock()

	if client != nil {
		client.Close()
		s.logger.Info("socket disconnected", "user_id", s.UserID)
	}
}
