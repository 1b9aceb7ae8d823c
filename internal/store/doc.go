// Package store persists client-side chat state in SQLite.
//
// Two tables are kept:
//
//   - unread_counts: the unread badge per user, written on every change
//   - users: the last fetched user list, in server order
//
// SQLiteStore implements chat.Persister so a Store can be restored after
// a restart without waiting for the network.
package store
