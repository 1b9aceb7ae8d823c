// ABOUTME: Tests for unread counting, conversation selection and live message reconciliation
// ABOUTME: Covers the counting properties, the receive decision rule and persistence hooks

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister is an in-memory Persister.
type memPersister struct {
	mu      sync.Mutex
	unread  map[string]int
	users   []User
	saveErr error
	loadErr error
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{unread: make(map[string]int)}
}

func (p *memPersister) SaveUnread(_ context.Context, userID string, count int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.unread[userID] = count
	return nil
}

func (p *memPersister) LoadUnread(context.Context) (map[string]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	out := make(map[string]int, len(p.unread))
	for k, v := range p.unread {
		out[k] = v
	}
	return out, nil
}

func (p *memPersister) SaveUsers(_ context.Context, users []User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.users = append([]User(nil), users...)
	return nil
}

func (p *memPersister) LoadUsers(context.Context) ([]User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	return append([]User(nil), p.users...), nil
}

// setDeduper records every ID it has seen.
type setDeduper map[string]bool

func (d setDeduper) Seen(id string) bool {
	if d[id] {
		return true
	}
	d[id] = true
	return false
}

func newTestStore() *Store {
	return NewStore(&fakeAPI{}, &fakeNotifier{}, nil)
}

func msgFrom(sender, content string) Message {
	return Message{
		ID:          sender + "-" + content,
		SenderID:    sender,
		RecipientID: "me",
		Content:     content,
		CreatedAt:   time.Now(),
	}
}

func TestIncrementUnread_CountsCalls(t *testing.T) {
	s := newTestStore()

	assert.Equal(t, 0, s.Unread("A"), "default is zero")
	for i := 1; i <= 5; i++ {
		s.IncrementUnread("A")
		assert.Equal(t, i, s.Unread("A"))
	}
	assert.Equal(t, 0, s.Unread("B"), "other users unaffected")
}

func TestClearUnread_Idempotent(t *testing.T) {
	s := newTestStore()
	s.IncrementUnread("A")
	s.IncrementUnread("A")

	s.ClearUnread("A")
	assert.Equal(t, 0, s.Unread("A"))

	s.ClearUnread("A")
	s.ClearUnread("A")
	assert.Equal(t, 0, s.Unread("A"))

	// The entry exists with value 0 rather than being deleted.
	count, ok := s.Snapshot().Unread["A"]
	assert.True(t, ok)
	assert.Equal(t, 0, count)
}

func TestSelectConversation_ZeroesUnread(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 3; i++ {
		s.IncrementUnread("A")
	}

	s.SelectConversation(&User{ID: "A"})

	st := s.Snapshot()
	assert.Equal(t, map[string]int{"A": 0}, st.Unread)
	require.NotNil(t, st.Active)
	assert.Equal(t, "A", st.Active.ID)
}

func TestSelectConversation_NilDeselects(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})
	s.IncrementUnread("A")

	s.SelectConversation(nil)

	assert.Nil(t, s.Active())
	assert.Equal(t, 1, s.Unread("A"), "deselect clears nothing")
}

func TestSelectConversation_CopiesUser(t *testing.T) {
	s := newTestStore()
	u := &User{ID: "A", FullName: "Alice"}
	s.SelectConversation(u)

	u.FullName = "changed"
	assert.Equal(t, "Alice", s.Active().FullName)
}

func TestReceiveMessage_NoActiveConversation(t *testing.T) {
	s := newTestStore()

	r := s.ReceiveMessage(Message{ID: "m1", SenderID: "A"})

	assert.Equal(t, CountedUnread, r.Delivery)
	assert.Equal(t, 1, r.Unread)
	st := s.Snapshot()
	assert.Equal(t, map[string]int{"A": 1}, st.Unread)
	assert.Empty(t, st.Messages)
}

func TestReceiveMessage_FromActiveConversation(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})

	m := Message{ID: "m1", SenderID: "A", Content: "hi"}
	r := s.ReceiveMessage(m)

	assert.Equal(t, DeliveredLive, r.Delivery)
	assert.Equal(t, []Message{m}, s.Messages())
	assert.Equal(t, 0, s.Unread("A"))
}

func TestReceiveMessage_FromOtherUser(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})
	s.ReceiveMessage(msgFrom("A", "first"))
	before := s.Messages()

	r := s.ReceiveMessage(msgFrom("B", "psst"))

	assert.Equal(t, CountedUnread, r.Delivery)
	assert.Equal(t, 1, s.Unread("B"))
	assert.Equal(t, before, s.Messages(), "history untouched")
	assert.Equal(t, 0, s.Unread("A"))
}

func TestReceiveMessage_ActiveUserAsRecipientIsCounted(t *testing.T) {
	// The rule keys on the sender only: a message sent by someone else to
	// the active user does not count as part of the visible conversation.
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})

	r := s.ReceiveMessage(Message{ID: "m1", SenderID: "me", RecipientID: "A"})

	assert.Equal(t, CountedUnread, r.Delivery)
	assert.Equal(t, 1, s.Unread("me"))
	assert.Empty(t, s.Messages())
}

func TestReceiveMessage_PreservesInsertionOrder(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})

	var want []Message
	for _, c := range []string{"one", "two", "three"} {
		m := msgFrom("A", c)
		want = append(want, m)
		s.ReceiveMessage(m)
	}

	assert.Equal(t, want, s.Messages())
}

func TestReceiveMessage_SwitchingBackClearsAccumulated(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})
	s.ReceiveMessage(msgFrom("B", "1"))
	s.ReceiveMessage(msgFrom("B", "2"))
	require.Equal(t, 2, s.Unread("B"))

	s.SelectConversation(&User{ID: "B"})
	assert.Equal(t, 0, s.Unread("B"))

	r := s.ReceiveMessage(msgFrom("B", "3"))
	assert.Equal(t, DeliveredLive, r.Delivery)
	assert.Equal(t, 0, s.Unread("B"))
}

func TestReceiveMessage_DropsDuplicates(t *testing.T) {
	s := newTestStore()
	s.SetDeduper(setDeduper{})

	m := Message{ID: "m1", SenderID: "A"}
	first := s.ReceiveMessage(m)
	second := s.ReceiveMessage(m)

	assert.Equal(t, CountedUnread, first.Delivery)
	assert.Equal(t, DroppedDuplicate, second.Delivery)
	assert.Equal(t, 1, s.Unread("A"))
}

func TestReceiveMessage_EmptyIDSkipsDedupe(t *testing.T) {
	s := newTestStore()
	s.SetDeduper(setDeduper{})

	s.ReceiveMessage(Message{SenderID: "A"})
	s.ReceiveMessage(Message{SenderID: "A"})

	assert.Equal(t, 2, s.Unread("A"))
}

func TestActiveUnreadStaysZeroUnderConcurrency(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.ReceiveMessage(Message{SenderID: "A"})
				s.ReceiveMessage(Message{SenderID: "B"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, s.Unread("A"))
	assert.Equal(t, 200, s.Unread("B"))
	assert.Len(t, s.Messages(), 200)
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := newTestStore()
	s.SelectConversation(&User{ID: "A"})
	s.ReceiveMessage(msgFrom("A", "hi"))
	s.IncrementUnread("B")

	st := s.Snapshot()
	st.Messages[0].Content = "mutated"
	st.Unread["B"] = 99
	st.Active.ID = "Z"

	assert.Equal(t, "hi", s.Messages()[0].Content)
	assert.Equal(t, 1, s.Unread("B"))
	assert.Equal(t, "A", s.Active().ID)
}

func TestPersister_WritesThroughUnreadChanges(t *testing.T) {
	s := newTestStore()
	p := newMemPersister()
	s.SetPersister(p)

	s.ReceiveMessage(Message{SenderID: "A"})
	s.ReceiveMessage(Message{SenderID: "A"})
	assert.Equal(t, 2, p.unread["A"])

	s.SelectConversation(&User{ID: "A"})
	assert.Equal(t, 0, p.unread["A"])
}

func TestPersister_SaveErrorDoesNotBlockState(t *testing.T) {
	s := newTestStore()
	p := newMemPersister()
	p.saveErr = errors.New("disk full")
	s.SetPersister(p)

	s.IncrementUnread("A")

	assert.Equal(t, 1, s.Unread("A"))
	assert.Equal(t, 1, p.saves)
}

func TestRestore(t *testing.T) {
	p := newMemPersister()
	p.unread = map[string]int{"A": 4, "B": 2}
	p.users = []User{{ID: "A", FullName: "Alice"}, {ID: "B", FullName: "Bob"}}

	s := newTestStore()
	s.SetPersister(p)
	s.SelectConversation(&User{ID: "B"})

	require.NoError(t, s.Restore(context.Background()))

	assert.Equal(t, 4, s.Unread("A"))
	assert.Equal(t, 0, s.Unread("B"), "active conversation stays at zero")
	assert.Equal(t, p.users, s.Users())
}

func TestRestore_NoPersister(t *testing.T) {
	s := newTestStore()
	assert.NoError(t, s.Restore(context.Background()))
}

func TestRestore_LoadError(t *testing.T) {
	p := newMemPersister()
	p.loadErr = errors.New("corrupt")
	s := newTestStore()
	s.SetPersister(p)

	err := s.Restore(context.Background())
	assert.ErrorIs(t, err, p.loadErr)
}

func TestDelivery_String(t *testing.T) {
	assert.Equal(t, "live", DeliveredLive.String())
	assert.Equal(t, "unread", CountedUnread.String())
	assert.Equal(t, "duplicate", DroppedDuplicate.String())
	assert.Equal(t, "unknown", Delivery(42).String())
}

// gatedPersister blocks SaveUnread until release is closed.
type gatedPersister struct {
	*memPersister
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPersister) SaveUnread(ctx context.Context, userID string, count int) error {
	p.entered <- struct{}{}
	<-p.release
	return p.memPersister.SaveUnread(ctx, userID, count)
}

func TestPersister_SlowWriteDoesNotBlockReaders(t *testing.T) {
	p := &gatedPersister{
		memPersister: newMemPersister(),
		entered:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	s := newTestStore()
	s.SetPersister(p)

	done := make(chan struct{})
	go func() {
		s.ReceiveMessage(Message{ID: "m1", SenderID: "A"})
		close(done)
	}()
	<-p.entered

	read := make(chan int, 1)
	go func() { read <- s.Unread("A") }()
	select {
	case n := <-read:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("reader blocked behind a pending persist write")
	}
	assert.Len(t, s.Snapshot().Unread, 1)

	close(p.release)
	<-done
	assert.Equal(t, 1, p.unread["A"])
}

func TestPersister_ConcurrentWritesEndAtLatestCount(t *testing.T) {
	s := newTestStore()
	p := newMemPersister()
	s.SetPersister(p)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.IncrementUnread("A")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, s.Unread("A"))
	assert.Equal(t, 100, p.unread["A"])
}
