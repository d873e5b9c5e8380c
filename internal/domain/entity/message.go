package entity

import "time"

// Message is the unit of conversation between a borrower and a lender.
// Once persisted it is immutable except for the single ReadAt transition,
// which only ever moves from nil to a timestamp.
type Message struct {
	ID         string     `json:"id" firestore:"id"`
	SenderID   string     `json:"sender_id" firestore:"senderId"`
	ReceiverID string     `json:"receiver_id" firestore:"receiverId"`
	BookingID  string     `json:"booking_id,omitempty" firestore:"bookingId,omitempty"` // optional rental scope
	Body       string     `json:"body" firestore:"body"`
	CreatedAt  time.Time  `json:"created_at" firestore:"createdAt"`
	ReadAt     *time.Time `json:"read_at,omitempty" firestore:"readAt"`
}

// ConversationSummary is a derived view, never persisted. A conversation is
// identified by the unordered user pair plus the optional booking scope.
type ConversationSummary struct {
	CounterpartID string   `json:"counterpart_id"`
	BookingID     string   `json:"booking_id,omitempty"`
	LastMessage   *Message `json:"last_message"`
	UnreadCount   int64    `json:"unread_count"`
}
