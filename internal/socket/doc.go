// Package socket is the real-time side of the chat client.
//
// A Client reads JSON frames of the form
//
//	{"event": "newMessage", "data": {...}}
//
// from a websocket and publishes each frame's data on the Broadcaster
// under its event name. Consumers call On to get a channel per event and
// Off to drop every registration for an event. Reconnection is left to
// the caller.
package socket
