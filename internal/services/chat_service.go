package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	"github.com/NdodaEnde/Telehealth-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyAssigned = errors.New("conversation already assigned")
)

const previewLength = 100

// nameResolver resolves a user's display name from their profile.
type nameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// ChangePublisher receives a row snapshot after every successful mutation and
// fans it out to subscribed clients.
type ChangePublisher interface {
	PublishMessageInsert(message *models.ChatMessage)
	PublishConversationInsert(conversation *models.Conversation)
	PublishConversationUpdate(conversation *models.Conversation)
}

type ChatService struct {
	db               *pgxpool.Pool
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         nameResolver
	publisher        ChangePublisher
}

func NewChatService(
	db *pgxpool.Pool,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo nameResolver,
	publisher ChangePublisher,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		publisher:        publisher,
	}
}

// ListOptions narrows the staff conversation list. Patients always get their
// own conversations regardless of options.
type ListOptions struct {
	Status         string
	AssignedToMe   bool
	UnassignedOnly bool
	Limit          int
}

func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

func (s *ChatService) CreateConversation(
	ctx context.Context,
	actorID string,
	role string,
	initialMessage string,
) (*models.Conversation, error) {
	if role != models.RolePatient {
		return nil, ErrForbidden
	}

	trimmed := strings.TrimSpace(initialMessage)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	patientName, err := s.userRepo.DisplayName(ctx, actorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	preview := previewText(trimmed)
	conversation := &models.Conversation{
		ID:            uuid.NewString(),
		PatientID:     actorID,
		PatientName:   patientName,
		Status:        models.StatusNew,
		LastMessage:   &preview,
		LastMessageAt: &now,
		UnreadCount:   1,
	}
	message := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       actorID,
		SenderName:     patientName,
		SenderRole:     models.RolePatient,
		Content:        trimmed,
		MessageType:    models.MessageTypeText,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	if err := txConversationRepo.Create(ctx, conversation); err != nil {
		return nil, err
	}
	if err := txMessageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publisher.PublishConversationInsert(conversation)
	s.publisher.PublishMessageInsert(message)

	return conversation, nil
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actorID string,
	role string,
	opts ListOptions,
) ([]models.Conversation, error) {
	filter := repository.ConversationFilter{
		Status: opts.Status,
		Limit:  opts.Limit,
	}

	switch {
	case role == models.RolePatient:
		filter.PatientID = actorID
	case models.StaffRole(role):
		if opts.AssignedToMe {
			filter.ReceptionistID = actorID
		} else if opts.UnassignedOnly {
			filter.UnassignedOnly = true
		}
	default:
		return nil, ErrForbidden
	}

	return s.conversationRepo.List(ctx, filter)
}

func (s *ChatService) UnassignedConversations(
	ctx context.Context,
	role string,
	limit int,
) ([]models.Conversation, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}
	return s.conversationRepo.List(ctx, repository.ConversationFilter{
		UnassignedOnly: true,
		ExcludeClosed:  true,
		Limit:          limit,
	})
}

func (s *ChatService) MyChats(
	ctx context.Context,
	actorID string,
	role string,
	limit int,
) ([]models.Conversation, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}
	return s.conversationRepo.List(ctx, repository.ConversationFilter{
		ReceptionistID: actorID,
		ExcludeClosed:  true,
		Limit:          limit,
	})
}

func (s *ChatService) GetConversation(
	ctx context.Context,
	actorID string,
	role string,
	conversationID string,
) (*models.Conversation, error) {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if role == models.RolePatient && conversation.PatientID != actorID {
		return nil, ErrForbidden
	}

	return conversation, nil
}

func (s *ChatService) ClaimConversation(
	ctx context.Context,
	actorID string,
	role string,
	conversationID string,
) (*models.Conversation, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}

	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.ReceptionistID != nil {
		return nil, ErrAlreadyAssigned
	}

	receptionistName, err := s.userRepo.DisplayName(ctx, actorID)
	if err != nil {
		return nil, err
	}

	systemMessage := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       models.RoleSystem,
		SenderName:     "System",
		SenderRole:     models.RoleSystem,
		Content:        receptionistName + " has joined the conversation",
		MessageType:    models.MessageTypeSystem,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	claimed, err := txConversationRepo.Claim(ctx, conversationID, actorID, receptionistName)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyAssigned
	}
	if err := txMessageRepo.Create(ctx, systemMessage); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishConversationUpdate(updated)
	s.publisher.PublishMessageInsert(systemMessage)

	return updated, nil
}

func (s *ChatService) ReassignConversation(
	ctx context.Context,
	role string,
	conversationID string,
	receptionistID string,
) (*models.Conversation, error) {
	if role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if receptionistID == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	receptionistName, err := s.userRepo.DisplayName(ctx, receptionistID)
	if err != nil {
		return nil, err
	}

	systemMessage := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       models.RoleSystem,
		SenderName:     "System",
		SenderRole:     models.RoleSystem,
		Content:        "Conversation reassigned to " + receptionistName,
		MessageType:    models.MessageTypeSystem,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	if err := txConversationRepo.Reassign(ctx, conversationID, receptionistID, receptionistName); err != nil {
		return nil, err
	}
	if err := txMessageRepo.Create(ctx, systemMessage); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishConversationUpdate(updated)
	s.publisher.PublishMessageInsert(systemMessage)

	return updated, nil
}

// UpdateStatus writes any known status value. Transition legality is left to
// the staff workflow on purpose.
func (s *ChatService) UpdateStatus(
	ctx context.Context,
	role string,
	conversationID string,
	status string,
) (*models.Conversation, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}
	if !models.ValidStatus(status) {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := s.conversationRepo.UpdateStatus(ctx, conversationID, status); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishConversationUpdate(updated)

	return updated, nil
}

func (s *ChatService) UpdatePatientType(
	ctx context.Context,
	role string,
	conversationID string,
	patientType string,
) (*models.Conversation, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}
	if !models.ValidPatientType(patientType) {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := s.conversationRepo.UpdatePatientType(ctx, conversationID, patientType); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishConversationUpdate(updated)

	return updated, nil
}

// SendInput carries an outbound message. FileURL/FileName/FileSize are only
// set for image and file messages.
type SendInput struct {
	Content     string
	MessageType string
	FileURL     *string
	FileName    *string
	FileSize    *int64
}

func (s *ChatService) SendMessage(
	ctx context.Context,
	actorID string,
	role string,
	conversationID string,
	input SendInput,
) (*models.ChatMessage, error) {
	trimmed := strings.TrimSpace(input.Content)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}
	messageType := input.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !models.ValidMessageType(messageType) {
		return nil, ErrInvalidInput
	}

	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	switch {
	case role == models.RolePatient:
		if conversation.PatientID != actorID {
			return nil, ErrForbidden
		}
	case models.StaffRole(role):
		assigned := conversation.ReceptionistID != nil && *conversation.ReceptionistID == actorID
		if !assigned && role != models.RoleAdmin {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}

	senderName, err := s.userRepo.DisplayName(ctx, actorID)
	if err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       actorID,
		SenderName:     senderName,
		SenderRole:     role,
		Content:        trimmed,
		MessageType:    messageType,
		FileURL:        input.FileURL,
		FileName:       input.FileName,
		FileSize:       input.FileSize,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	if err := txMessageRepo.Create(ctx, message); err != nil {
		return nil, err
	}
	if err := txConversationRepo.TouchPreview(ctx, conversationID, previewText(trimmed), message.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err == nil {
		s.publisher.PublishConversationUpdate(updated)
	}
	s.publisher.PublishMessageInsert(message)

	return message, nil
}

func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID string,
	role string,
	conversationID string,
	limit int,
	before *time.Time,
) ([]models.ChatMessage, error) {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if role == models.RolePatient && conversation.PatientID != actorID {
		return nil, ErrForbidden
	}
	if !models.StaffRole(role) && role != models.RolePatient {
		return nil, ErrForbidden
	}

	if limit <= 0 {
		limit = 100
	}

	return s.messageRepo.ListByConversation(ctx, conversationID, limit, before)
}

// MarkRead stamps every message not authored by the actor and resets the
// conversation's unread counter.
func (s *ChatService) MarkRead(
	ctx context.Context,
	actorID string,
	conversationID string,
) (*models.Conversation, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	if err := txMessageRepo.MarkConversationRead(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	if err := txConversationRepo.ResetUnread(ctx, conversationID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	updated, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishConversationUpdate(updated)

	return updated, nil
}

func (s *ChatService) Stats(ctx context.Context, actorID string, role string) (*models.ChatStats, error) {
	if !models.StaffRole(role) {
		return nil, ErrForbidden
	}
	return s.conversationRepo.Stats(ctx, actorID)
}
