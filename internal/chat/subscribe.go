// ABOUTME: Wires the store to a socket event source for real-time message delivery
// ABOUTME: Decodes newMessage payloads, reconciles them and emits delivery receipts

package chat

import (
	"context"
	"encoding/json"
)

// EventNewMessage is the socket event that carries an incoming Message.
const EventNewMessage = "newMessage"

// receiptBufferSize matches the socket broadcaster's per-subscriber buffer.
const receiptBufferSize = 64

// EventSource delivers raw event payloads on named channels.
type EventSource interface {
	On(ctx context.Context, event string) (<-chan json.RawMessage, string)
	Off(event string)
}

// SubscribeToMessages registers the store against src's newMessage channel.
// Each payload is handled by ReceiveMessage in delivery order and its
// receipt is sent on the returned channel, which closes when the
// subscription ends. Receipts are dropped if the channel is not drained.
// Calling it twice registers twice.
func (s *Store) SubscribeToMessages(ctx context.Context, src EventSource) <-chan Receipt {
	events, subID := src.On(ctx, EventNewMessage)
	receipts := make(chan Receipt, receiptBufferSize)

	s.logger.Debug("subscribed to messages", "sub_id", subID)

	go func() {
		defer close(receipts)
		for raw := range events {
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.logger.Warn("ignoring malformed message event",
					"error", err,
					"sub_id", subID,
				)
				continue
			}

			r := s.ReceiveMessage(msg)
			select {
			case receipts <- r:
			default:
				s.logger.Debug("dropped receipt for slow reader", "message_id", msg.ID)
			}
		}
		s.logger.Debug("message subscription ended", "sub_id", subID)
	}()

	return receipts
}

// UnsubscribeFromMessages removes every newMessage registration on src.
func (s *Store) UnsubscribeFromMessages(src EventSource) {
	src.Off(EventNewMessage)
}
