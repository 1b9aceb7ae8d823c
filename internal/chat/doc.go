// Package chat holds the client-side conversation state.
//
// # Overview
//
// A Store tracks the known users, the active conversation partner, the
// message history of that conversation and an unread counter per user.
// It is created by the application's composition root and passed to
// whatever needs it:
//
//	st := chat.NewStore(apiClient, notifier, logger)
//	receipts := st.SubscribeToMessages(ctx, session.Socket())
//
// # Reconciliation
//
// Real-time messages arrive through SubscribeToMessages. Each one is
// either appended to the visible history (its sender is the active
// conversation) or counted as unread for its sender. Selecting a
// conversation zeroes that user's counter in the same critical section
// that makes it active, so the active user's counter is always 0.
//
// # Collaborators
//
//   - API: REST client for users, history and sending
//   - Notifier: user-facing error display
//   - EventSource: named event channels fed by the socket
//   - Persister: optional write-through storage for unread counts and users
//   - Deduper: optional window that drops redelivered message IDs
package chat
