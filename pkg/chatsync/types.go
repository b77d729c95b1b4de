// Package chatsync keeps a client-side view of clinic chat state in sync with
// the backend. It is a thin write-through cache: actions call the REST API and
// apply the result locally right away, while a real-time feed of row snapshots
// is merged in idempotently behind them.
package chatsync

import "time"

// Conversation is the client-side view of a chat thread, as served by the
// conversations endpoints and the change feed.
type Conversation struct {
	ID               string     `json:"id"`
	PatientID        string     `json:"patient_id"`
	PatientName      string     `json:"patient_name"`
	ReceptionistID   *string    `json:"receptionist_id"`
	ReceptionistName *string    `json:"receptionist_name"`
	Status           string     `json:"status"`
	PatientType      *string    `json:"patient_type"`
	BookingID        *string    `json:"booking_id"`
	LastMessage      *string    `json:"last_message"`
	LastMessageAt    *time.Time `json:"last_message_at"`
	UnreadCount      int        `json:"unread_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	SenderRole     string     `json:"sender_role"`
	Content        string     `json:"content"`
	MessageType    string     `json:"message_type"`
	FileURL        *string    `json:"file_url"`
	FileName       *string    `json:"file_name"`
	FileSize       *int64     `json:"file_size"`
	ReadAt         *time.Time `json:"read_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Actor identifies the signed-in user the store belongs to.
type Actor struct {
	ID   string
	Role string
}
