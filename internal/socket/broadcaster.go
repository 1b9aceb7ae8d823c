// ABOUTME: In-memory fan-out of socket event payloads keyed by event name
// ABOUTME: Replaces on/off handler registration with per-subscriber channels

package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// subscription is one registered channel. done is closed together with ch
// so the context watcher for the subscription exits.
type subscription struct {
	ch   chan json.RawMessage
	done chan struct{}
}

func (s *subscription) close() {
	close(s.done)
	close(s.ch)
}

// Broadcaster delivers published payloads to every subscriber of an event.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // event -> subID -> sub
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*subscription),
		logger:      logger.With("component", "socket"),
	}
}

// On registers a subscriber for event and returns its channel and
// subscription ID. The subscription is removed when ctx is cancelled.
// Registering twice yields two independent channels.
func (b *Broadcaster) On(ctx context.Context, event string) (<-chan json.RawMessage, string) {
	subID := uuid.New().String()
	sub := &subscription{
		ch:   make(chan json.RawMessage, subscriberBufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if _, ok := b.subscribers[event]; !ok {
		b.subscribers[event] = make(map[string]*subscription)
	}
	b.subscribers[event][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "event", event, "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(event, subID)
		case <-sub.done:
		}
	}()

	return sub.ch, subID
}

// Publish sends payload to all subscribers of event. Subscribers whose
// channels are full miss the payload.
func (b *Broadcaster) Publish(event string, payload json.RawMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, sub := range b.subscribers[event] {
		select {
		case sub.ch <- payload:
		default:
			b.logger.Warn("dropped event for slow subscriber",
				"event", event,
				"sub_id", subID)
		}
	}
}

// Unsubscribe removes one subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(event, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[event]
	if !ok {
		return
	}
	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	sub.close()
	if len(subs) == 0 {
		delete(b.subscribers, event)
	}

	b.logger.Debug("subscriber removed", "event", event, "sub_id", subID)
}

// Off removes every subscription for event and closes their channels.
func (b *Broadcaster) Off(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[event]
	for _, sub := range subs {
		sub.close()
	}
	delete(b.subscribers, event)

	b.logger.Debug("event handlers removed", "event", event, "count", len(subs))
}

// Subscribers returns the number of live subscriptions for event.
func (b *Broadcaster) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[event])
}

// Close removes every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for event, subs := range b.subscribers {
		for _, sub := range subs {
			sub.close()
		}
		delete(b.subscribers, event)
	}
}
