package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NdodaEnde/Telehealth-sub000/internal/models"
	"github.com/NdodaEnde/Telehealth-sub000/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type stubChatService struct {
	conversation *models.Conversation
	message      *models.ChatMessage
	messages     []models.ChatMessage
	stats        *models.ChatStats
	err          error

	lastListOpts  services.ListOptions
	lastSendInput services.SendInput
	lastLimit     int
	lastBefore    *time.Time
	markReadCalls int
}

func (s *stubChatService) CreateConversation(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) ListConversations(_ context.Context, _, _ string, opts services.ListOptions) ([]models.Conversation, error) {
	s.lastListOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	if s.conversation == nil {
		return []models.Conversation{}, nil
	}
	return []models.Conversation{*s.conversation}, nil
}

func (s *stubChatService) UnassignedConversations(_ context.Context, _ string, limit int) ([]models.Conversation, error) {
	s.lastLimit = limit
	return []models.Conversation{}, s.err
}

func (s *stubChatService) MyChats(_ context.Context, _, _ string, limit int) ([]models.Conversation, error) {
	s.lastLimit = limit
	return []models.Conversation{}, s.err
}

func (s *stubChatService) GetConversation(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) ClaimConversation(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) ReassignConversation(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) UpdateStatus(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) UpdatePatientType(_ context.Context, _, _, _ string) (*models.Conversation, error) {
	return s.conversation, s.err
}

func (s *stubChatService) SendMessage(_ context.Context, _, _, _ string, input services.SendInput) (*models.ChatMessage, error) {
	s.lastSendInput = input
	return s.message, s.err
}

func (s *stubChatService) ListMessages(_ context.Context, _, _, _ string, limit int, before *time.Time) ([]models.ChatMessage, error) {
	s.lastLimit = limit
	s.lastBefore = before
	return s.messages, s.err
}

func (s *stubChatService) MarkRead(_ context.Context, _, _ string) (*models.Conversation, error) {
	s.markReadCalls++
	return s.conversation, s.err
}

func (s *stubChatService) Stats(_ context.Context, _, _ string) (*models.ChatStats, error) {
	return s.stats, s.err
}

type stubStorage struct {
	signedURL     string
	err           error
	lastSignedFor string
}

func (s *stubStorage) UploadFile(_ context.Context, _ multipart.File, filename, folder string) (string, error) {
	return "https://storage.example/" + folder + "/" + filename, s.err
}

func (s *stubStorage) GetSignedURL(_ context.Context, fileURL string) (string, error) {
	s.lastSignedFor = fileURL
	return s.signedURL, s.err
}

func setupChatApp(service *stubChatService, userID, role string) *fiber.App {
	return setupChatAppWithStorage(service, nil, userID, role)
}

func setupChatAppWithStorage(service *stubChatService, storage services.StorageService, userID, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
			c.Locals("role", role)
		}
		return c.Next()
	})

	handler := NewChatHandler(service, nil, storage, "test-secret")
	chat := app.Group("/api/v1/chat")
	chat.Get("/conversations", handler.ListConversations)
	chat.Post("/conversations", handler.CreateConversation)
	chat.Get("/conversations/unassigned", handler.UnassignedConversations)
	chat.Get("/conversations/my-chats", handler.MyChats)
	chat.Get("/conversations/:id", handler.GetConversation)
	chat.Post("/conversations/:id/claim", handler.ClaimConversation)
	chat.Patch("/conversations/:id/status", handler.UpdateStatus)
	chat.Post("/conversations/:id/messages", handler.SendMessage)
	chat.Get("/conversations/:id/messages", handler.GetMessages)
	chat.Post("/conversations/:id/read", handler.MarkRead)
	chat.Get("/conversations/:id/files", handler.GetFileLink)
	chat.Get("/stats", handler.Stats)
	return app
}

func sampleConversation() *models.Conversation {
	now := time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)
	return &models.Conversation{
		ID:          "c1",
		PatientID:   "p1",
		PatientName: "Thandi M",
		Status:      models.StatusNew,
		UnreadCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateConversationReturnsEnvelope(t *testing.T) {
	service := &stubChatService{conversation: sampleConversation()}
	app := setupChatApp(service, "p1", "patient")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations",
		strings.NewReader(`{"initial_message":"I need an appointment"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body struct {
		Conversation models.Conversation `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Conversation.ID != "c1" || body.Conversation.PatientName != "Thandi M" {
		t.Fatalf("unexpected body: %+v", body.Conversation)
	}
}

func TestListConversationsParsesQuery(t *testing.T) {
	service := &stubChatService{}
	app := setupChatApp(service, "n1", "nurse")

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/chat/conversations?status=active&assigned_to_me=true&limit=10", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastListOpts.Status != "active" || !service.lastListOpts.AssignedToMe || service.lastListOpts.Limit != 10 {
		t.Fatalf("unexpected opts: %+v", service.lastListOpts)
	}
}

func TestListConversationsRejectsUnknownStatus(t *testing.T) {
	app := setupChatApp(&stubChatService{}, "n1", "nurse")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations?status=bogus", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChatHandlersRequireAuth(t *testing.T) {
	app := setupChatApp(&stubChatService{}, "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", services.ErrForbidden, fiber.StatusForbidden},
		{"invalid input", services.ErrInvalidInput, fiber.StatusBadRequest},
		{"already assigned", services.ErrAlreadyAssigned, fiber.StatusConflict},
		{"not found", pgx.ErrNoRows, fiber.StatusNotFound},
		{"unexpected", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := setupChatApp(&stubChatService{err: tc.err}, "n1", "nurse")

			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations/c1/claim", nil)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("expected %d, got %d (%s)", tc.want, resp.StatusCode, body)
			}
		})
	}
}

func TestSendMessageForwardsPayload(t *testing.T) {
	service := &stubChatService{
		message: &models.ChatMessage{ID: "m1", ConversationID: "c1", Content: "hello"},
	}
	app := setupChatApp(service, "p1", "patient")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations/c1/messages",
		strings.NewReader(`{"content":"hello","message_type":"image","file_url":"https://files.example/x.png"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastSendInput.Content != "hello" || service.lastSendInput.MessageType != "image" {
		t.Fatalf("unexpected input: %+v", service.lastSendInput)
	}
	if service.lastSendInput.FileURL == nil || *service.lastSendInput.FileURL != "https://files.example/x.png" {
		t.Fatalf("file_url not forwarded: %+v", service.lastSendInput)
	}
}

func TestGetMessagesCapsLimitAndParsesCursor(t *testing.T) {
	service := &stubChatService{messages: []models.ChatMessage{}}
	app := setupChatApp(service, "p1", "patient")

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/chat/conversations/c1/messages?limit=9999&before=2026-05-12T08:00:00Z", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastLimit != maxMessageLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxMessageLimit, service.lastLimit)
	}
	if service.lastBefore == nil || !service.lastBefore.Equal(time.Date(2026, 5, 12, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("cursor not parsed: %v", service.lastBefore)
	}
}

func TestGetMessagesRejectsBadCursor(t *testing.T) {
	app := setupChatApp(&stubChatService{}, "p1", "patient")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/c1/messages?before=yesterday", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetFileLinkSignsAttachment(t *testing.T) {
	service := &stubChatService{conversation: sampleConversation()}
	storage := &stubStorage{signedURL: "https://storage.example/signed/x.png?token=abc"}
	app := setupChatAppWithStorage(service, storage, "p1", "patient")

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/chat/conversations/c1/files?file_url=https%3A%2F%2Fstorage.example%2Fpublic%2Fx.png", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, body)
	}
	if storage.lastSignedFor != "https://storage.example/public/x.png" {
		t.Fatalf("unexpected file url signed: %q", storage.lastSignedFor)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["signed_url"] != storage.signedURL {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetFileLinkRequiresFileURL(t *testing.T) {
	service := &stubChatService{conversation: sampleConversation()}
	app := setupChatAppWithStorage(service, &stubStorage{}, "p1", "patient")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/c1/files", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetFileLinkWithoutStorageConfigured(t *testing.T) {
	app := setupChatApp(&stubChatService{conversation: sampleConversation()}, "p1", "patient")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/c1/files?file_url=x", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGetFileLinkDeniedWhenConversationForbidden(t *testing.T) {
	app := setupChatAppWithStorage(&stubChatService{err: services.ErrForbidden}, &stubStorage{}, "p2", "patient")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/conversations/c1/files?file_url=x", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestMarkReadRespondsOK(t *testing.T) {
	service := &stubChatService{conversation: sampleConversation()}
	app := setupChatApp(service, "p1", "patient")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/conversations/c1/read", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.markReadCalls != 1 {
		t.Fatalf("expected one mark-read call, got %d", service.markReadCalls)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}
