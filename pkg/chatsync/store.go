package chatsync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNoConversationSelected is returned by SendMessage when no conversation
// is open.
var ErrNoConversationSelected = errors.New("chatsync: no conversation selected")

const (
	previewLength       = 100
	defaultRefetchDelay = 1500 * time.Millisecond
	loadingPlaceholder  = "Loading…"
)

// Store owns the client-side conversation and message caches for one session.
// Actions write through to the Remote and update the caches on success; feed
// events are merged in via the EventHandler methods. The UI reads snapshots
// and never mutates state directly.
//
// A mutex serializes actions against feed delivery, which arrives on the feed
// connection's goroutine.
type Store struct {
	remote Remote
	actor  Actor

	// refetchDelay spaces the follow-up fetch after a conversation-insert
	// event, giving the backend time to finish resolving denormalized name
	// fields before the re-read.
	refetchDelay time.Duration

	mu            sync.Mutex
	conversations []Conversation
	selected      *Conversation
	messages      []Message
	loading       bool
	lastErr       error
	closed        bool
}

type Option func(*Store)

// WithRefetchDelay overrides how long the store waits before re-reading a
// conversation that arrived over the feed.
func WithRefetchDelay(d time.Duration) Option {
	return func(s *Store) {
		s.refetchDelay = d
	}
}

func NewStore(remote Remote, actor Actor, opts ...Option) *Store {
	s := &Store{
		remote:        remote,
		actor:         actor,
		refetchDelay:  defaultRefetchDelay,
		conversations: make([]Conversation, 0),
		messages:      make([]Message, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close tears the store down. Late feed events and pending re-fetches become
// no-ops afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Conversations returns a snapshot of the cached conversation list.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns a snapshot of the open conversation's message history.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Selected returns a copy of the currently open conversation, or nil.
func (s *Store) Selected() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	selected := *s.selected
	return &selected
}

func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// LoadConversations replaces the conversation cache wholesale. On failure the
// prior contents stay put: stale-but-present beats empty-on-error.
func (s *Store) LoadConversations(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	conversations, err := s.remote.Conversations(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return err
	}
	s.conversations = conversations
	s.lastErr = nil
	return nil
}

// UnassignedConversations is a read-only triage-queue view. It does not touch
// the cache and degrades to an empty list on failure: it feeds a secondary UI
// panel that should never block the main list.
func (s *Store) UnassignedConversations(ctx context.Context) []Conversation {
	conversations, err := s.remote.UnassignedConversations(ctx)
	if err != nil {
		log.Printf("chatsync: load unassigned conversations: %v", err)
		return []Conversation{}
	}
	return conversations
}

// MyChats is the assigned-to-me counterpart of UnassignedConversations, with
// the same best-effort contract.
func (s *Store) MyChats(ctx context.Context) []Conversation {
	conversations, err := s.remote.MyChats(ctx)
	if err != nil {
		log.Printf("chatsync: load my chats: %v", err)
		return []Conversation{}
	}
	return conversations
}

// SelectConversation opens a conversation: it fetches the fully resolved
// record and the message history, marks the thread read, and zeroes the
// unread counter locally. On fetch failure the previously open conversation
// and its messages remain untouched.
func (s *Store) SelectConversation(ctx context.Context, id string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	conversation, err := s.remote.Conversation(ctx, id)
	if err != nil {
		s.recordErr(err)
		return err
	}
	messages, err := s.remote.Messages(ctx, id)
	if err != nil {
		s.recordErr(err)
		return err
	}
	if err := s.remote.MarkRead(ctx, id); err != nil {
		log.Printf("chatsync: mark read %s: %v", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conversation.UnreadCount = 0
	s.replaceListEntry(*conversation)
	selected := *conversation
	s.selected = &selected
	s.messages = messages
	s.lastErr = nil
	return nil
}

// CreateConversation starts a new thread with an initial message and opens
// it. The head insert is skipped when a feed-driven insert got there first.
func (s *Store) CreateConversation(ctx context.Context, initialMessage string) (*Conversation, error) {
	conversation, err := s.remote.CreateConversation(ctx, initialMessage)
	if err != nil {
		return nil, err
	}

	// the server counts the initial message as unread, but the new thread
	// opens immediately
	conversation.UnreadCount = 0

	s.mu.Lock()
	if s.findConversation(conversation.ID) < 0 {
		s.conversations = append([]Conversation{*conversation}, s.conversations...)
	}
	selected := *conversation
	s.selected = &selected
	s.messages = make([]Message, 0)
	s.mu.Unlock()

	messages, err := s.remote.Messages(ctx, conversation.ID)
	if err != nil {
		s.recordErr(err)
		return conversation, nil
	}

	s.mu.Lock()
	if s.selected != nil && s.selected.ID == conversation.ID {
		s.messages = messages
	}
	s.mu.Unlock()

	return conversation, nil
}

// SendMessage posts to the open conversation and appends the server-assigned
// message locally. The sender's own unread count is never bumped.
func (s *Store) SendMessage(
	ctx context.Context,
	content, messageType string,
	fileURL, fileName *string,
) (*Message, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil, ErrNoConversationSelected
	}
	conversationID := s.selected.ID
	s.mu.Unlock()

	message, err := s.remote.SendMessage(ctx, conversationID, content, messageType, fileURL, fileName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected != nil && s.selected.ID == conversationID && !s.messageExists(message.ID) {
		s.messages = append(s.messages, *message)
	}
	s.touchPreview(conversationID, message.Content, message.CreatedAt, false)
	return message, nil
}

// ClaimConversation assigns the current staff actor, then re-fetches both the
// record and the list so resolved staff-name fields come from the server
// instead of being synthesized locally.
func (s *Store) ClaimConversation(ctx context.Context, id string) error {
	if err := s.remote.ClaimConversation(ctx, id); err != nil {
		return err
	}

	conversation, err := s.remote.Conversation(ctx, id)
	if err != nil {
		s.recordErr(err)
		return err
	}

	s.mu.Lock()
	s.replaceListEntry(*conversation)
	if s.selected != nil && s.selected.ID == id {
		selected := *conversation
		s.selected = &selected
	}
	s.mu.Unlock()

	return s.LoadConversations(ctx)
}

// UpdateConversationStatus writes the status remotely, then patches only the
// status field locally. The narrow update keeps fields the status response
// does not return.
func (s *Store) UpdateConversationStatus(ctx context.Context, id, status string) error {
	if err := s.remote.UpdateConversationStatus(ctx, id, status); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.findConversation(id); i >= 0 {
		s.conversations[i].Status = status
	}
	if s.selected != nil && s.selected.ID == id {
		s.selected.Status = status
	}
	return nil
}

// MarkRead resets a conversation's unread count remotely and locally.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	if err := s.remote.MarkRead(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.findConversation(id); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
	if s.selected != nil && s.selected.ID == id {
		s.selected.UnreadCount = 0
	}
	return nil
}

// HandleMessageInsert merges a pushed message. Self-authored events are
// discarded: the optimistic append in SendMessage already represents them,
// and dropping the echo avoids duplicate bubbles and ordering ambiguity.
func (s *Store) HandleMessageInsert(message Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || message.SenderID == s.actor.ID {
		return
	}

	open := s.selected != nil && s.selected.ID == message.ConversationID

	if open && !s.messageExists(message.ID) {
		if message.SenderName == "" {
			var staffName string
			if s.selected.ReceptionistName != nil {
				staffName = *s.selected.ReceptionistName
			}
			message.SenderName = SenderDisplayName(message.SenderRole, s.selected.PatientName, staffName)
		}
		s.messages = append(s.messages, message)
	}

	s.touchPreview(message.ConversationID, message.Content, message.CreatedAt, !open)
}

// HandleConversationInsert makes a pushed conversation visible immediately,
// with a placeholder for name fields the event did not resolve. A single
// delayed re-fetch then swaps in the resolved record; the delay covers the
// window in which the backend's denormalized name columns may still be
// settling.
func (s *Store) HandleConversationInsert(conversation Conversation) {
	s.mu.Lock()
	if s.closed || !s.visibleToActor(conversation) {
		s.mu.Unlock()
		return
	}
	if i := s.findConversation(conversation.ID); i >= 0 {
		merged := mergeConversation(s.conversations[i], conversation)
		s.applyMerged(i, merged)
		s.mu.Unlock()
		return
	}
	if conversation.PatientName == "" {
		conversation.PatientName = loadingPlaceholder
	}
	s.conversations = append([]Conversation{conversation}, s.conversations...)
	delay := s.refetchDelay
	s.mu.Unlock()

	go func() {
		time.Sleep(delay)
		s.refetchConversation(conversation.ID)
	}()
}

// HandleConversationUpdate merges a pushed row into the cached entry. Known
// participant names win over whatever the event carries: push payloads are
// not trusted to include resolved name fields.
func (s *Store) HandleConversationUpdate(conversation Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	i := s.findConversation(conversation.ID)
	if i < 0 {
		return
	}
	merged := mergeConversation(s.conversations[i], conversation)
	s.applyMerged(i, merged)
}

func (s *Store) refetchConversation(id string) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	conversation, err := s.remote.Conversation(context.Background(), id)
	if err != nil {
		log.Printf("chatsync: refetch conversation %s: %v", id, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if i := s.findConversation(id); i >= 0 {
		resolved := *conversation
		resolved.UnreadCount = s.conversations[i].UnreadCount
		s.applyMerged(i, resolved)
	}
}

// mergeConversation folds an event row into the cached record, re-asserting
// previously-known display names over the event's values.
func mergeConversation(existing, incoming Conversation) Conversation {
	merged := incoming
	if existing.PatientName != "" && existing.PatientName != loadingPlaceholder {
		merged.PatientName = existing.PatientName
	}
	if existing.ReceptionistName != nil {
		merged.ReceptionistName = existing.ReceptionistName
	}
	return merged
}

// applyMerged writes a merged record to the list and, when it is the open
// conversation, to the selection — whose unread count stays pinned at zero.
// Callers hold s.mu.
func (s *Store) applyMerged(i int, merged Conversation) {
	open := s.selected != nil && s.selected.ID == merged.ID
	if open {
		merged.UnreadCount = 0
		selected := merged
		s.selected = &selected
	}
	s.conversations[i] = merged
}

// touchPreview updates a conversation's last-message fields and optionally
// bumps its unread counter. Callers hold s.mu.
func (s *Store) touchPreview(conversationID, content string, at time.Time, bumpUnread bool) {
	preview := previewText(content)

	if i := s.findConversation(conversationID); i >= 0 {
		s.conversations[i].LastMessage = &preview
		s.conversations[i].LastMessageAt = &at
		if bumpUnread {
			s.conversations[i].UnreadCount++
		}
	}
	if s.selected != nil && s.selected.ID == conversationID {
		s.selected.LastMessage = &preview
		s.selected.LastMessageAt = &at
	}
}

// visibleToActor reports whether a pushed conversation belongs in this
// actor's list. The feed broadcasts every row to every client, so patients
// filter down to their own threads here; staff see the whole queue. Callers
// hold s.mu.
func (s *Store) visibleToActor(conversation Conversation) bool {
	if s.actor.Role == "patient" {
		return conversation.PatientID == s.actor.ID
	}
	return true
}

func (s *Store) recordErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// findConversation returns the cache index for id, or -1. Callers hold s.mu.
func (s *Store) findConversation(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// messageExists reports whether the open history already holds id. Callers
// hold s.mu.
func (s *Store) messageExists(id string) bool {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return true
		}
	}
	return false
}

// replaceListEntry overwrites the list entry for the record, inserting at the
// head when it is not cached yet. Callers hold s.mu.
func (s *Store) replaceListEntry(conversation Conversation) {
	if i := s.findConversation(conversation.ID); i >= 0 {
		s.conversations[i] = conversation
		return
	}
	s.conversations = append([]Conversation{conversation}, s.conversations...)
}

func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}
