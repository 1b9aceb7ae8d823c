// Package api is the REST client for the chat server.
//
// Endpoints:
//
//   - GET  /messages/users           users available to chat with
//   - GET  /messages/{userID}        history with one user, oldest first
//   - POST /messages/send/{userID}   send a message, returns the stored copy
//
// Non-2xx responses become *Error values carrying the server's "message"
// field, which is what the user is shown.
package api
