// ABOUTME: Tests for SQLite persistence of unread counts and users
// ABOUTME: Covers schema creation, upserts, ordering, replacement and reopen

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestUnread_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUnread(ctx, "alice", 3))
	require.NoError(t, s.SaveUnread(ctx, "bob", 1))
	require.NoError(t, s.SaveUnread(ctx, "alice", 0))

	counts, err := s.LoadUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 1}, counts)
}

func TestUnread_EmptyStore(t *testing.T) {
	s := newTestStore(t)

	counts, err := s.LoadUnread(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestUnread_RejectsNegative(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveUnread(context.Background(), "alice", -1)
	assert.Error(t, err)
}

func TestUsers_SaveKeepsOrderAndReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []chat.User{
		{ID: "c", FullName: "Carol"},
		{ID: "a", FullName: "Alice", Email: "alice@example.com"},
		{ID: "b", FullName: "Bob", ProfilePic: "https://img/b.png"},
	}
	require.NoError(t, s.SaveUsers(ctx, first))

	got, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second := []chat.User{{ID: "d", FullName: "Dave"}}
	require.NoError(t, s.SaveUsers(ctx, second))

	got, err = s.LoadUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveUnread(ctx, "alice", 2))
	require.NoError(t, s.SaveUsers(ctx, []chat.User{{ID: "alice", FullName: "Alice"}}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	counts, err := s.LoadUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["alice"])

	users, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].FullName)
}
