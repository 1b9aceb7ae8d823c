// ABOUTME: Data types shared by the conversation store and its collaborators
// ABOUTME: Defines User, Message, OutgoingMessage and delivery receipts

package chat

import "time"

// User is a chat participant as returned by the server.
type User struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Message is a persisted one-to-one chat message.
type Message struct {
	ID          string    `json:"_id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"receiverId"`
	Content     string    `json:"text,omitempty"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OutgoingMessage is the payload posted when sending a message.
type OutgoingMessage struct {
	Content string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Delivery describes what ReceiveMessage did with a message.
type Delivery int

const (
	// DeliveredLive means the message was appended to the active conversation.
	DeliveredLive Delivery = iota
	// CountedUnread means the sender's unread counter was incremented.
	CountedUnread
	// DroppedDuplicate means the message ID was already seen recently.
	DroppedDuplicate
)

func (d Delivery) String() string {
	switch d {
	case DeliveredLive:
		return "live"
	case CountedUnread:
		return "unread"
	case DroppedDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Receipt reports the outcome of one received message.
type Receipt struct {
	Message  Message
	Delivery Delivery
	// Unread is the sender's counter after the message was handled.
	Unread int
}

// State is a point-in-time copy of the store's contents.
type State struct {
	Messages        []Message
	Users           []User
	Active          *User
	Unread          map[string]int
	UsersLoading    bool
	MessagesLoading bool
}
