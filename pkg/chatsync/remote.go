package chatsync

import "context"

// Remote is the chat API surface the store depends on. The backend owns
// authorization, persistence and ordering; the store only caches.
type Remote interface {
	Conversations(ctx context.Context) ([]Conversation, error)
	UnassignedConversations(ctx context.Context) ([]Conversation, error)
	MyChats(ctx context.Context) ([]Conversation, error)
	Conversation(ctx context.Context, id string) (*Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	CreateConversation(ctx context.Context, initialMessage string) (*Conversation, error)
	SendMessage(ctx context.Context, conversationID, content, messageType string, fileURL, fileName *string) (*Message, error)
	ClaimConversation(ctx context.Context, id string) error
	UpdateConversationStatus(ctx context.Context, id, status string) error
	MarkRead(ctx context.Context, id string) error
}
