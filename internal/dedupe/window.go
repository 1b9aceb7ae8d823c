// ABOUTME: Time and size bounded window of recently seen message IDs
// ABOUTME: Lets the chat store ignore messages the socket delivers more than once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// sweepInterval is how often expired IDs are removed in the background.
const sweepInterval = time.Minute

type entry struct {
	id   string
	seen time.Time
}

// Window remembers message IDs for ttl, keeping at most size of them.
// The oldest ID is forgotten first when the window is full.
type Window struct {
	mu    sync.Mutex
	ids   map[string]*list.Element
	order *list.List // *entry, oldest at front
	ttl   time.Duration
	size  int
	now   func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// NewWindow creates a window and starts its background sweep. Call Close
// to stop it.
func NewWindow(ttl time.Duration, size int) *Window {
	if size <= 0 {
		size = 1
	}
	w := &Window{
		ids:   make(map[string]*list.Element),
		order: list.New(),
		ttl:   ttl,
		size:  size,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Seen reports whether id was recorded within the ttl. If not, id is
// recorded now and Seen returns false.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if el, ok := w.ids[id]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.seen) < w.ttl {
			return true
		}
		// Expired: record again as a fresh sighting.
		e.seen = now
		w.order.MoveToBack(el)
		return false
	}

	for len(w.ids) >= w.size {
		w.removeLocked(w.order.Front())
	}
	w.ids[id] = w.order.PushBack(&entry{id: id, seen: now})
	return false
}

// Len returns the number of remembered IDs, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ids)
}

// Close stops the background sweep. Safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() { close(w.stop) })
}

func (w *Window) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

// sweep forgets expired IDs. Entries are ordered by last sighting, so it
// stops at the first live one.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for el := w.order.Front(); el != nil; el = w.order.Front() {
		if now.Sub(el.Value.(*entry).seen) < w.ttl {
			return
		}
		w.removeLocked(el)
	}
}

func (w *Window) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	e := w.order.Remove(el).(*entry)
	delete(w.ids, e.id)
}
