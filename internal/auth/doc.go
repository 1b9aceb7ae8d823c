// Package auth holds the signed-in user's session for coven-chat.
//
// # Tokens
//
// The session token is a JWT issued by the chat server. It is read from
// COVEN_CHAT_TOKEN, then from $XDG_CONFIG_HOME/coven-chat/token:
//
//	token := LoadToken()
//	userID, err := SubjectFromToken(token)
//
// The client never holds the signing key, so the token is parsed without
// verification and only its subject (or userId claim) is read. The server
// remains the authority on validity.
//
// # Sessions
//
// A Session pairs the user ID with the socket connection used for live
// delivery. Connect replaces any previous connection:
//
//	s, err := NewSession(token, logger)
//	sock, err := s.Connect(ctx, "ws://localhost:5001/ws", 0)
//	defer s.Disconnect()
package auth
